// Package domain re-exports the core record types from their owning
// sub-packages so callers can depend on one import path.
package domain

import (
	"github.com/moveset-labs/clipcore/internal/domain/exercises"
	"github.com/moveset-labs/clipcore/internal/domain/jobs"
	"github.com/moveset-labs/clipcore/internal/domain/routines"
	"github.com/moveset-labs/clipcore/internal/domain/transcript"
	"github.com/moveset-labs/clipcore/internal/domain/vectors"
)

type Exercise = exercises.Exercise
type ExerciseFilter = exercises.Filter
type Fingerprint = exercises.Fingerprint

type Job = jobs.Job
type JobState = jobs.State
type CreatedExerciseResult = jobs.CreatedExerciseResult
type DoneResult = jobs.DoneResult
type FailedResult = jobs.FailedResult

const (
	JobPending    = jobs.StatePending
	JobInProgress = jobs.StateInProgress
	JobDone       = jobs.StateDone
	JobFailed     = jobs.StateFailed
)

type Routine = routines.Routine
type CompiledWorkout = routines.CompiledWorkout

type Segment = transcript.Segment

func PtrFloat(v float64) *float64 { return transcript.PtrFloat(v) }

type VectorPayload = vectors.Payload
type VectorHit = vectors.Hit
