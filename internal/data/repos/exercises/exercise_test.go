package exercises

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moveset-labs/clipcore/internal/data/repos/testutil"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

func newTestExercise(normalizedURL string, carouselIndex int, name string) *types.Exercise {
	return &types.Exercise{
		SourceURL:     "https://www.tiktok.com/@acct/video/1",
		NormalizedURL: normalizedURL,
		CarouselIndex: carouselIndex,
		Name:          name,
		ClipPath:      "/content/clips/" + name + ".mp4",
		StartTime:     1.0,
		EndTime:       6.5,
		FitnessLevel:  3,
		Intensity:     5,
	}
}

func TestExerciseRepo_InsertRejectsDuplicateFingerprint(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewExerciseRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	first := newTestExercise("tiktok.com/@acct/video/1", 1, "handstand hold")
	_, err := repo.Insert(dbc, first)
	require.NoError(t, err)

	dup := newTestExercise("tiktok.com/@acct/video/1", 1, "handstand hold")
	_, err = repo.Insert(dbc, dup)
	require.Error(t, err)
	assert.Equal(t, pipeerr.KindDuplicate, pipeerr.KindOf(err))
}

func TestExerciseRepo_DeleteIsHardDeleteAndFreesFingerprint(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewExerciseRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	fp := types.Fingerprint{NormalizedURL: "tiktok.com/@acct/video/2", CarouselIndex: 1, Name: "wall stretch"}
	ex := newTestExercise(fp.NormalizedURL, fp.CarouselIndex, fp.Name)
	inserted, err := repo.Insert(dbc, ex)
	require.NoError(t, err)

	deleted, err := repo.Delete(dbc, inserted.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, inserted.ID, deleted.ID)

	found, err := repo.FindByFingerprint(dbc, fp)
	require.NoError(t, err)
	assert.Nil(t, found, "a hard-deleted row must not linger behind a soft-delete marker")

	// Re-ingesting the identical (normalized_url, carousel_index, name)
	// tuple must succeed: the unique index shouldn't still be holding the
	// deleted row's slot.
	reinserted, err := repo.Insert(dbc, newTestExercise(fp.NormalizedURL, fp.CarouselIndex, fp.Name))
	require.NoError(t, err)
	assert.NotEqual(t, inserted.ID, reinserted.ID)
}

func TestExerciseRepo_ListFiltersByFitnessAndIntensityRange(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewExerciseRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	low := newTestExercise("tiktok.com/@acct/video/3", 1, "easy mobility drill")
	low.FitnessLevel, low.Intensity = 1, 1
	high := newTestExercise("tiktok.com/@acct/video/3", 2, "advanced handstand push")
	high.FitnessLevel, high.Intensity = 9, 9

	_, err := repo.Insert(dbc, low)
	require.NoError(t, err)
	_, err = repo.Insert(dbc, high)
	require.NoError(t, err)

	minLevel, maxLevel := 5, 10
	out, err := repo.List(dbc, types.ExerciseFilter{MinFitnessLevel: &minLevel, MaxFitnessLevel: &maxLevel})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, high.ID, out[0].ID)

	substring, err := repo.List(dbc, types.ExerciseFilter{NameContains: "handstand"})
	require.NoError(t, err)
	require.Len(t, substring, 1)
	assert.Equal(t, high.ID, substring[0].ID)
}

func TestExerciseRepo_ListEscapesLikeMetacharacters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewExerciseRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	_, err := repo.Insert(dbc, newTestExercise("tiktok.com/@acct/video/4", 1, "50%_off push up"))
	require.NoError(t, err)

	out, err := repo.List(dbc, types.ExerciseFilter{NameContains: "50%_off"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	none, err := repo.List(dbc, types.ExerciseFilter{NameContains: "50xoff"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
