package repos

import (
	"gorm.io/gorm"

	"github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	"github.com/moveset-labs/clipcore/internal/data/repos/jobs"
	"github.com/moveset-labs/clipcore/internal/data/repos/routines"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

type ExerciseRepo = exercises.ExerciseRepo
type JobRepo = jobs.JobRepo
type RoutineRepo = routines.RoutineRepo
type CompiledWorkoutRepo = routines.CompiledWorkoutRepo

func NewExerciseRepo(db *gorm.DB, baseLog *logger.Logger) ExerciseRepo {
	return exercises.NewExerciseRepo(db, baseLog)
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return jobs.NewJobRepo(db, baseLog)
}

func NewRoutineRepo(db *gorm.DB, baseLog *logger.Logger) RoutineRepo {
	return routines.NewRoutineRepo(db, baseLog)
}

func NewCompiledWorkoutRepo(db *gorm.DB) CompiledWorkoutRepo {
	return routines.NewCompiledWorkoutRepo(db)
}
