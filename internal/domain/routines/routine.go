package routines

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Routine is a user-curated ordered sequence of exercise ids. No
// foreign-key constraint is enforced on ExerciseIDs; stale ids are
// tolerated and filtered at read time by the caller.
type Routine struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null;size:200" json:"name"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	ExerciseIDs pq.StringArray `gorm:"column:exercise_ids;type:text[];not null" json:"exercise_ids"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Routine) TableName() string { return "workout_routines" }

// CompiledWorkout is a materialized, concatenated video produced from a
// Routine's ordered clips. Supplemental to the core spec (see SPEC_FULL.md
// §3); the Pipeline Orchestrator never depends on it.
type CompiledWorkout struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RoutineID   uuid.UUID      `gorm:"type:uuid;column:routine_id;not null;index" json:"routine_id"`
	OutputPath  string         `gorm:"column:output_path;not null" json:"output_path"`
	DurationSec float64        `gorm:"column:duration_sec;type:decimal(10,3)" json:"duration_sec"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CompiledWorkout) TableName() string { return "compiled_workouts" }
