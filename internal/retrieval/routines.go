package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	routinerepo "github.com/moveset-labs/clipcore/internal/data/repos/routines"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// SearchIDsForStory runs diverse search for one story and returns only the
// resulting exercise ids, ordered by final score (spec §4.12).
func SearchIDsForStory(
	ctx context.Context,
	store vector.Store,
	embedder Embedder,
	exercises exerciserepo.ExerciseRepo,
	story string,
	k int,
) ([]uuid.UUID, error) {
	ranked, err := DiverseSearch(ctx, store, embedder, exercises, story, k, DefaultScoreThreshold, DefaultMaxPerCategory)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.Exercise.ID)
	}
	return ids, nil
}

// CreateRoutine persists a caller-supplied, ordered exercise id list as a
// named routine. No curation runs here; callers that want curation call
// CurateRoutine first and feed its output in.
func CreateRoutine(ctx context.Context, routines routinerepo.RoutineRepo, name, description string, exerciseIDs []uuid.UUID) (*types.Routine, error) {
	ids := make([]string, 0, len(exerciseIDs))
	for _, id := range exerciseIDs {
		ids = append(ids, id.String())
	}
	routine := &types.Routine{Name: name, Description: description, ExerciseIDs: ids}
	return routines.Create(dbctx.Context{Ctx: ctx}, routine)
}

func GetRoutine(ctx context.Context, routines routinerepo.RoutineRepo, id uuid.UUID) (*types.Routine, error) {
	return routines.Get(dbctx.Context{Ctx: ctx}, id)
}

func ListRoutines(ctx context.Context, routines routinerepo.RoutineRepo, limit, offset int) ([]*types.Routine, error) {
	return routines.List(dbctx.Context{Ctx: ctx}, limit, offset)
}

func DeleteRoutine(ctx context.Context, routines routinerepo.RoutineRepo, id uuid.UUID) error {
	return routines.Delete(dbctx.Context{Ctx: ctx}, id)
}

// BulkGetExercises fetches exercises by id, preserving input order; unknown
// ids are skipped rather than erroring (spec §4.12).
func BulkGetExercises(ctx context.Context, exercises exerciserepo.ExerciseRepo, ids []uuid.UUID) ([]*types.Exercise, error) {
	rows, err := exercises.GetMany(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk get exercises: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Exercise, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]*types.Exercise, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}
