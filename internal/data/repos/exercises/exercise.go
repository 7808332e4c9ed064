package exercises

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

// ExerciseRepo is the Exercise Store (spec.md §4.8): a durable row per
// exercise with uniqueness on (normalized_url, carousel_index, name),
// filtered queries, and cascade-friendly delete.
type ExerciseRepo interface {
	Insert(dbc dbctx.Context, ex *types.Exercise) (*types.Exercise, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error)
	List(dbc dbctx.Context, filter types.ExerciseFilter) ([]*types.Exercise, error)
	GetMany(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error)
	SearchByURL(dbc dbctx.Context, normalizedURL string) ([]*types.Exercise, error)
	FindByFingerprint(dbc dbctx.Context, fp types.Fingerprint) (*types.Exercise, error)
	SetVectorID(dbc dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error)
	AllClipPaths(dbc dbctx.Context) ([]string, error)
}

type exerciseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExerciseRepo(db *gorm.DB, baseLog *logger.Logger) ExerciseRepo {
	return &exerciseRepo{db: db, log: baseLog.With("repo", "ExerciseRepo")}
}

func (r *exerciseRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

// Insert enforces the (normalized_url, carousel_index, name) uniqueness
// invariant and returns a pipeerr KindDuplicate error on conflict, rather
// than the raw driver error, so the Orchestrator can branch on kind.
func (r *exerciseRepo) Insert(dbc dbctx.Context, ex *types.Exercise) (*types.Exercise, error) {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	err := r.tx(dbc).WithContext(dbc.Ctx).Create(ex).Error
	if err == nil {
		return ex, nil
	}
	if isUniqueViolation(err) {
		return nil, pipeerr.New(pipeerr.KindDuplicate, "exercise already exists for fingerprint", err)
	}
	return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
}

func (r *exerciseRepo) Get(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
	var ex types.Exercise
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&ex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return &ex, nil
}

func (r *exerciseRepo) List(dbc dbctx.Context, filter types.ExerciseFilter) ([]*types.Exercise, error) {
	q := r.tx(dbc).WithContext(dbc.Ctx).Model(&types.Exercise{})
	if filter.NormalizedURL != "" {
		q = q.Where("normalized_url = ?", filter.NormalizedURL)
	}
	if filter.NameContains != "" {
		q = q.Where("name LIKE ?", likePattern(filter.NameContains))
	}
	if filter.MinFitnessLevel != nil {
		q = q.Where("fitness_level >= ?", *filter.MinFitnessLevel)
	}
	if filter.MaxFitnessLevel != nil {
		q = q.Where("fitness_level <= ?", *filter.MaxFitnessLevel)
	}
	if filter.MinIntensity != nil {
		q = q.Where("intensity >= ?", *filter.MinIntensity)
	}
	if filter.MaxIntensity != nil {
		q = q.Where("intensity <= ?", *filter.MaxIntensity)
	}
	if filter.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *filter.CreatedBefore)
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []*types.Exercise
	if err := q.Find(&out).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return out, nil
}

func (r *exerciseRepo) GetMany(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
	if len(ids) == 0 {
		return []*types.Exercise{}, nil
	}
	var out []*types.Exercise
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return out, nil
}

func (r *exerciseRepo) SearchByURL(dbc dbctx.Context, normalizedURL string) ([]*types.Exercise, error) {
	var out []*types.Exercise
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("normalized_url = ?", normalizedURL).
		Order("carousel_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return out, nil
}

func (r *exerciseRepo) FindByFingerprint(dbc dbctx.Context, fp types.Fingerprint) (*types.Exercise, error) {
	var ex types.Exercise
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("normalized_url = ? AND carousel_index = ? AND name = ?", fp.NormalizedURL, fp.CarouselIndex, fp.Name).
		First(&ex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return &ex, nil
}

func (r *exerciseRepo) SetVectorID(dbc dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error {
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Exercise{}).
		Where("id = ?", id).
		Update("vector_id", vectorID).Error
	if err != nil {
		return pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return nil
}

// Delete hard-deletes the row (Exercise carries no DeletedAt column) so the
// (normalized_url, carousel_index, name) fingerprint is free for
// re-ingestion immediately, and returns the deleted row so the caller (the
// Orchestrator, driving cascade delete) can clean up the clip file and
// vector entry it owned.
func (r *exerciseRepo) Delete(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
	ex, err := r.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Exercise{}).Error; err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return ex, nil
}

func (r *exerciseRepo) AllClipPaths(dbc dbctx.Context) ([]string, error) {
	var paths []string
	err := r.tx(dbc).WithContext(dbc.Ctx).Model(&types.Exercise{}).Pluck("clip_path", &paths).Error
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.KindPersistenceFailed, err)
	}
	return paths, nil
}

// likePattern escapes LIKE metacharacters so substring filters can't be
// abused as wildcard patterns, then wraps the term for a substring match.
func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
