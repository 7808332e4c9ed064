package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// -------------------- fakes --------------------

type fakeEmbedder struct{ vectors [][]float32 }

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return f.vectors, nil
}

type fakeVectorStore struct{ hits []vector.Hit }

func (f *fakeVectorStore) Upsert(ctx context.Context, vecs []vector.Vector) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int, scoreThreshold float64, filter map[string]any) ([]vector.Hit, error) {
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) Info(ctx context.Context) (vector.Info, error)  { return vector.Info{}, nil }
func (f *fakeVectorStore) Scroll(ctx context.Context, cursor string, limit int) ([]vector.Hit, string, error) {
	return f.hits, "", nil
}

type fakeExerciseRepo struct{ rows map[uuid.UUID]*types.Exercise }

func (r *fakeExerciseRepo) Insert(dbc dbctx.Context, ex *types.Exercise) (*types.Exercise, error) {
	return nil, nil
}
func (r *fakeExerciseRepo) Get(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
	return r.rows[id], nil
}
func (r *fakeExerciseRepo) List(dbc dbctx.Context, filter types.ExerciseFilter) ([]*types.Exercise, error) {
	return nil, nil
}
func (r *fakeExerciseRepo) GetMany(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Exercise, error) {
	out := make([]*types.Exercise, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}
func (r *fakeExerciseRepo) SearchByURL(dbc dbctx.Context, normalizedURL string) ([]*types.Exercise, error) {
	return nil, nil
}
func (r *fakeExerciseRepo) FindByFingerprint(dbc dbctx.Context, fp types.Fingerprint) (*types.Exercise, error) {
	return nil, nil
}
func (r *fakeExerciseRepo) SetVectorID(dbc dbctx.Context, id uuid.UUID, vectorID uuid.UUID) error {
	return nil
}
func (r *fakeExerciseRepo) Delete(dbc dbctx.Context, id uuid.UUID) (*types.Exercise, error) {
	return nil, nil
}
func (r *fakeExerciseRepo) AllClipPaths(dbc dbctx.Context) ([]string, error) { return nil, nil }

var _ exerciserepo.ExerciseRepo = (*fakeExerciseRepo)(nil)

type fakeCoach struct {
	text string
	err  error
}

func (c *fakeCoach) GenerateText(ctx context.Context, system, user string) (string, error) {
	return c.text, c.err
}

// -------------------- helpers --------------------

func exerciseRow(name, howTo string) *types.Exercise {
	return &types.Exercise{ID: uuid.New(), Name: name, HowTo: howTo, StartTime: 0, EndTime: 10}
}

func hitFor(ex *types.Exercise, score float64) vector.Hit {
	return vector.Hit{
		VectorID: uuid.NewString(),
		Score:    score,
		Payload: map[string]any{
			"database_id": ex.ID.String(),
			"name":        ex.Name,
			"how_to":      ex.HowTo,
		},
	}
}

// -------------------- tests --------------------

func TestDiverseSearch_CapsHitsPerCategory(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	var hits []vector.Hit
	// three squats (hip_leg) scored highest, should be capped at 2
	for i := 0; i < 3; i++ {
		ex := exerciseRow(fmt.Sprintf("Squat Variant %d", i), "bend knees and lower hips")
		repo.rows[ex.ID] = ex
		hits = append(hits, hitFor(ex, 0.9-float64(i)*0.01))
	}
	plank := exerciseRow("Plank Hold", "hold a straight line on forearms")
	repo.rows[plank.ID] = plank
	hits = append(hits, hitFor(plank, 0.5))

	store := &fakeVectorStore{hits: hits}
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}

	ranked, err := DiverseSearch(context.Background(), store, embedder, repo, "lower body exercises", 4, 0.3, 2)
	require.NoError(t, err)

	hipLegCount := 0
	for _, r := range ranked {
		if r.Category == "hip_leg" {
			hipLegCount++
		}
	}
	assert.LessOrEqual(t, hipLegCount, 2)
	assert.Len(t, ranked, 3) // 2 squats + 1 plank
}

func TestDiverseSearch_DropsOrphanHits(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	orphanID := uuid.New()
	store := &fakeVectorStore{hits: []vector.Hit{{
		VectorID: uuid.NewString(),
		Score:    0.8,
		Payload:  map[string]any{"database_id": orphanID.String(), "name": "Ghost Exercise"},
	}}}
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1}}}

	ranked, err := DiverseSearch(context.Background(), store, embedder, repo, "anything", 5, 0.3, 2)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestGenerateStories_FallsBackOnCoachError(t *testing.T) {
	coach := &fakeCoach{err: fmt.Errorf("model unavailable")}
	stories, err := GenerateStories(context.Background(), coach, "help me get stronger", 3)
	require.NoError(t, err)
	assert.Len(t, stories, 3)
}

func TestGenerateStories_ParsesNumberedList(t *testing.T) {
	coach := &fakeCoach{text: "1. Hip mobility work\n2. Core strength training\n3. Balance practice"}
	stories, err := GenerateStories(context.Background(), coach, "general fitness", 5)
	require.NoError(t, err)
	require.Len(t, stories, 3)
	assert.Equal(t, "Hip mobility work", stories[0])
}

func TestSearchIDsForStory_ReturnsExerciseIDs(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	ex := exerciseRow("Wall Handstand", "kick up against a wall")
	repo.rows[ex.ID] = ex
	store := &fakeVectorStore{hits: []vector.Hit{hitFor(ex, 0.7)}}
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1}}}

	ids, err := SearchIDsForStory(context.Background(), store, embedder, repo, "handstand practice", 5)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, ex.ID, ids[0])
}

func TestBulkGetExercises_PreservesOrderAndSkipsUnknown(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	a := exerciseRow("A", "")
	b := exerciseRow("B", "")
	repo.rows[a.ID] = a
	repo.rows[b.ID] = b
	unknown := uuid.New()

	out, err := BulkGetExercises(context.Background(), repo, []uuid.UUID{b.ID, unknown, a.ID})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Name)
	assert.Equal(t, "A", out[1].Name)
}

func TestCurateRoutine_FallsBackToGreedyFillWhenCoachFails(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	ex1 := exerciseRow("Squat", "bend knees")
	ex1.StartTime, ex1.EndTime = 0, 30
	ex2 := exerciseRow("Plank", "hold straight line")
	ex2.StartTime, ex2.EndTime = 0, 30
	repo.rows[ex1.ID] = ex1
	repo.rows[ex2.ID] = ex2

	store := &fakeVectorStore{hits: []vector.Hit{hitFor(ex1, 0.9), hitFor(ex2, 0.8)}}
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1}}}
	coach := &fakeCoach{err: fmt.Errorf("curator unavailable")}

	selected, err := CurateRoutine(context.Background(), store, embedder, repo, coach, CurationRequest{
		Stories:           []string{"lower body", "core"},
		UserRequirements:  "quick workout",
		TargetDurationSec: 45,
		IntensityLevel:    "moderate",
	}, 5)
	require.NoError(t, err)
	require.Len(t, selected, 1) // only one 30s clip fits in a 45s budget
}
