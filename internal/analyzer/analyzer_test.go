package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/keyframe"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/openai"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	t.Cleanup(func() { log.Sync() })
	return log
}

func seg(text string, start, end float64) types.Segment {
	s, e := start, end
	return types.Segment{Text: text, StartSec: &s, EndSec: &e}
}

func TestKeyword_MatchesKnownMovementWithSufficientSpan(t *testing.T) {
	out := Keyword([]types.Segment{seg("now drop into a deep squat and hold", 0, 5)})
	require.Len(t, out, 1)
	assert.Equal(t, "Squat", out[0].Name)
	assert.Equal(t, 0.3, out[0].Confidence)
}

func TestKeyword_RejectsShortSpanEvenWithKeyword(t *testing.T) {
	out := Keyword([]types.Segment{seg("quick squat", 0, 2)})
	assert.Empty(t, out)
}

func TestKeyword_RejectsNoKeywordMatch(t *testing.T) {
	out := Keyword([]types.Segment{seg("welcome back to the channel everyone", 0, 10)})
	assert.Empty(t, out)
}

func TestEnforceInvariants_DropsShortAndClampsConfidence(t *testing.T) {
	out := enforceInvariants([]Candidate{
		{Name: "too short", Start: 0, End: 1, Confidence: 0.9},
		{Name: "ok", Start: 0, End: 4, Confidence: 1.5},
		{Name: "negative conf", Start: 0, End: 5, Confidence: -0.2},
	})
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Confidence)
	assert.Equal(t, 0.0, out[1].Confidence)
}

func TestSampleEvenly_KeepsFirstAndLastAndRespectsCap(t *testing.T) {
	frames := make([]keyframe.Frame, 20)
	for i := range frames {
		frames[i] = keyframe.Frame{FrameNumber: i}
	}
	out := sampleEvenly(frames, 5)
	require.Len(t, out, 5)
	assert.Equal(t, 0, out[0].FrameNumber)
	assert.Equal(t, 19, out[len(out)-1].FrameNumber)
}

func TestSampleEvenly_NoOpWhenUnderCap(t *testing.T) {
	frames := []keyframe.Frame{{FrameNumber: 1}, {FrameNumber: 2}}
	assert.Equal(t, frames, sampleEvenly(frames, 5))
}

func TestContext_IsCarouselHook(t *testing.T) {
	assert.True(t, Context{CarouselCount: 3, CarouselPosition: 1}.isCarouselHook())
	assert.False(t, Context{CarouselCount: 3, CarouselPosition: 2}.isCarouselHook())
	assert.False(t, Context{CarouselCount: 1, CarouselPosition: 1}.isCarouselHook())
}

func TestOpenAIAnalyzer_ParsesCandidatesFromClient(t *testing.T) {
	client := &fakeOpenAIClient{
		jsonResp: map[string]any{
			"candidates": []any{
				map[string]any{"name": "Plank", "start": 1.0, "end": 6.0, "confidence": 0.8},
			},
		},
	}
	a, err := NewOpenAI(newTestLogger(t), client)
	require.NoError(t, err)

	out, err := a.Analyze(context.Background(), nil, "hold a plank", Context{Platform: "instagram"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Plank", out[0].Name)
}

func TestOpenAIAnalyzer_PropagatesClientError(t *testing.T) {
	client := &fakeOpenAIClient{err: assertError("rate limited")}
	a, err := NewOpenAI(newTestLogger(t), client)
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), nil, "", Context{})
	require.Error(t, err)
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }
func assertError(msg string) error    { return assertErrType(msg) }

type fakeOpenAIClient struct {
	jsonResp map[string]any
	err      error
}

func (f *fakeOpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeOpenAIClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return f.jsonResp, f.err
}

func (f *fakeOpenAIClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func (f *fakeOpenAIClient) GenerateTextWithImages(ctx context.Context, system, user string, images []openai.ImageInput) (string, error) {
	return "", nil
}

func (f *fakeOpenAIClient) GenerateJSONWithImages(ctx context.Context, system, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	return f.jsonResp, f.err
}
