package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// -------------------- fakes --------------------

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
	return nil, nil
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
func (r *fakeExerciseRepo) AllClipPaths(dbc dbctx.Context) ([]string, error) {
	var out []string
	for _, ex := range r.rows {
		out = append(out, ex.ClipPath)
	}
	return out, nil
}

var _ exerciserepo.ExerciseRepo = (*fakeExerciseRepo)(nil)

type fakeVectorStore struct {
	hits []vector.Hit
	// deleted records every vector id passed to Delete, across calls.
	deleted []string
}

func (f *fakeVectorStore) Upsert(ctx context.Context, vectors []vector.Vector) error { return nil }
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int, scoreThreshold float64, filter map[string]any) ([]vector.Hit, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}
func (f *fakeVectorStore) Info(ctx context.Context) (vector.Info, error) { return vector.Info{}, nil }
func (f *fakeVectorStore) Scroll(ctx context.Context, cursor string, limit int) ([]vector.Hit, string, error) {
	// single-page fake: ignores cursor/limit, always returns everything.
	if cursor != "" {
		return nil, "", nil
	}
	return f.hits, "", nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	t.Cleanup(func() { log.Sync() })
	return log
}

// -------------------- tests --------------------

func TestReconcileClips_DeletesFilesWithNoReferencingRow(t *testing.T) {
	contentRoot := t.TempDir()
	clipsDir := filepath.Join(contentRoot, "clips")
	require.NoError(t, os.MkdirAll(clipsDir, 0o755))

	keptPath := filepath.Join(clipsDir, "kept.mp4")
	orphanPath := filepath.Join(clipsDir, "orphan.mp4")
	require.NoError(t, os.WriteFile(keptPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(orphanPath, []byte("x"), 0o644))

	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	kept := &types.Exercise{ID: uuid.New(), ClipPath: keptPath}
	repo.rows[kept.ID] = kept

	summary, err := ReconcileClips(context.Background(), newTestLogger(t), repo, contentRoot, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ScannedFiles)
	assert.Equal(t, []string{orphanPath}, summary.Deleted)
	assert.FileExists(t, keptPath)
	assert.NoFileExists(t, orphanPath)
}

func TestReconcileClips_DryRunLeavesFilesInPlace(t *testing.T) {
	contentRoot := t.TempDir()
	clipsDir := filepath.Join(contentRoot, "clips")
	require.NoError(t, os.MkdirAll(clipsDir, 0o755))
	orphanPath := filepath.Join(clipsDir, "orphan.mp4")
	require.NoError(t, os.WriteFile(orphanPath, []byte("x"), 0o644))

	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}

	summary, err := ReconcileClips(context.Background(), newTestLogger(t), repo, contentRoot, true)
	require.NoError(t, err)

	assert.Equal(t, []string{orphanPath}, summary.Orphaned)
	assert.Empty(t, summary.Deleted)
	assert.FileExists(t, orphanPath)
}

func TestReconcileClips_MissingClipsDirIsNotAnError(t *testing.T) {
	contentRoot := t.TempDir()
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}

	summary, err := ReconcileClips(context.Background(), newTestLogger(t), repo, contentRoot, false)
	require.NoError(t, err)
	assert.Zero(t, summary.ScannedFiles)
}

func TestReconcileVectors_DeletesEntriesWithNoResolvingRow(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	live := &types.Exercise{ID: uuid.New()}
	repo.rows[live.ID] = live
	orphanID := uuid.New()

	store := &fakeVectorStore{hits: []vector.Hit{
		{VectorID: "v1", Payload: map[string]any{"database_id": live.ID.String()}},
		{VectorID: "v2", Payload: map[string]any{"database_id": orphanID.String()}},
		{VectorID: "v3", Payload: map[string]any{"database_id": "not-a-uuid"}},
	}}

	summary, err := ReconcileVectors(context.Background(), newTestLogger(t), store, repo, false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.ScannedEntries)
	assert.ElementsMatch(t, []string{"v2", "v3"}, summary.Deleted)
	assert.ElementsMatch(t, []string{"v2", "v3"}, store.deleted)
}

func TestReconcileVectors_DryRunDoesNotCallDelete(t *testing.T) {
	repo := &fakeExerciseRepo{rows: map[uuid.UUID]*types.Exercise{}}
	orphanID := uuid.New()
	store := &fakeVectorStore{hits: []vector.Hit{
		{VectorID: "v1", Payload: map[string]any{"database_id": orphanID.String()}},
	}}

	summary, err := ReconcileVectors(context.Background(), newTestLogger(t), store, repo, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"v1"}, summary.Orphaned)
	assert.Empty(t, store.deleted)
}
