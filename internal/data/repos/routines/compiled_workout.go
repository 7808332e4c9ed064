package routines

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

// CompiledWorkoutRepo persists CompiledWorkout rows (SPEC_FULL.md §3/§4.12
// supplement). Additive: no core operation depends on it.
type CompiledWorkoutRepo interface {
	Create(dbc dbctx.Context, cw *types.CompiledWorkout) (*types.CompiledWorkout, error)
	ListByRoutine(dbc dbctx.Context, routineID uuid.UUID) ([]*types.CompiledWorkout, error)
}

type compiledWorkoutRepo struct{ db *gorm.DB }

func NewCompiledWorkoutRepo(db *gorm.DB) CompiledWorkoutRepo {
	return &compiledWorkoutRepo{db: db}
}

func (r *compiledWorkoutRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *compiledWorkoutRepo) Create(dbc dbctx.Context, cw *types.CompiledWorkout) (*types.CompiledWorkout, error) {
	if cw.ID == uuid.Nil {
		cw.ID = uuid.New()
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(cw).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return cw, nil
}

func (r *compiledWorkoutRepo) ListByRoutine(dbc dbctx.Context, routineID uuid.UUID) ([]*types.CompiledWorkout, error) {
	var out []*types.CompiledWorkout
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("routine_id = ?", routineID).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return out, nil
}
