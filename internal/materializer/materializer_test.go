package materializer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	t.Cleanup(func() { log.Sync() })
	return log
}

func TestSlug_LowercasesAndReplacesNonAlphanumerics(t *testing.T) {
	assert.Equal(t, "wall_handstand_hold_", Slug("Wall Handstand-Hold!"))
}

func TestSlug_TruncatesTo80Characters(t *testing.T) {
	long := ""
	for i := 0; i < 120; i++ {
		long += "a"
	}
	assert.Len(t, Slug(long), 80)
}

func TestShortHash_IsDeterministicAndDistinguishesInputs(t *testing.T) {
	a := ShortHash("Squat", "https://example.tld/v/1", 12.5)
	b := ShortHash("Squat", "https://example.tld/v/1", 12.5)
	c := ShortHash("Squat", "https://example.tld/v/1", 13.0)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
}

func TestFilename_MatchesSlugHashExtScheme(t *testing.T) {
	name := Filename("Wall Sit", "https://example.tld/v/1", 4.0, ".mp4")
	assert.Regexp(t, `^wall_sit_[0-9a-f]{12}\.mp4$`, name)
}

func TestMaterialize_RejectsEndBeforeStart(t *testing.T) {
	m := New(newTestLogger(t))
	err := m.Materialize(context.Background(), "/tmp/source.mp4", 5, 2, "/tmp/out.mp4")
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonIO, merr.Reason)
}
