package routines

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

// RoutineRepo backs the Retrieval/Curation routine CRUD operations
// (spec.md §4.12).
type RoutineRepo interface {
	Create(dbc dbctx.Context, r *types.Routine) (*types.Routine, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Routine, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Routine, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type routineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoutineRepo(db *gorm.DB, baseLog *logger.Logger) RoutineRepo {
	return &routineRepo{db: db, log: baseLog.With("repo", "RoutineRepo")}
}

func (r *routineRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *routineRepo) Create(dbc dbctx.Context, rt *types.Routine) (*types.Routine, error) {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(rt).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return rt, nil
}

func (r *routineRepo) Get(dbc dbctx.Context, id uuid.UUID) (*types.Routine, error) {
	var rt types.Routine
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&rt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return &rt, nil
}

func (r *routineRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Routine, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []*types.Routine
	if err := q.Find(&out).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return out, nil
}

func (r *routineRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Routine{}).Error; err != nil {
		return pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return nil
}
