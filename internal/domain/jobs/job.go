package jobs

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// IsTerminal reports whether a Job in this state can no longer transition.
func (s State) IsTerminal() bool { return s == StateDone || s == StateFailed }

// Job is a background ingestion task tracked by the Job Ledger. State
// progression is monotonic: pending -> in_progress -> (done | failed).
type Job struct {
	JobID string `gorm:"column:job_id;primaryKey" json:"job_id"`
	URL   string `gorm:"column:url;not null" json:"url"`

	State  State          `gorm:"column:state;not null;index" json:"state"`
	Result datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`

	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// CreatedExerciseResult is one entry in a Job's "done" result payload.
type CreatedExerciseResult struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ClipPath  string  `json:"clip_path"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	// Status is "created" | "duplicate" | "duplicate_skipped" | "failed".
	Status string `json:"status"`
	// ErrorKind mirrors pipeerr.Kind and is set alongside Status == "failed".
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DoneResult is the structured payload stored on a successful Job.
type DoneResult struct {
	Exercises []CreatedExerciseResult `json:"exercises"`
}

// FailedResult is the structured payload stored on a failed Job.
type FailedResult struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}
