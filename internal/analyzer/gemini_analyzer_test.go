package analyzer

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeminiClient struct {
	usedKey string
	text    string
	err     error
}

func TestGeminiAnalyzer_FallsBackToBackupKeyOnQuotaError(t *testing.T) {
	calls := map[string]int{}
	newClient := func(ctx context.Context, apiKey string) (geminiClient, error) {
		calls[apiKey]++
		if apiKey == "primary-key" {
			return &fakeGeminiClient{err: assertError("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")}, nil
		}
		return &fakeGeminiClient{text: `{"candidates": [{"name": "Lunge", "start": 0, "end": 4, "confidence": 0.7}]}`}, nil
	}

	a := &geminiAnalyzer{apiKey: "primary-key", backupKey: "backup-key", model: "gemini-2.5-flash", newClient: newClient, log: newTestLogger(t)}

	out, err := a.Analyze(context.Background(), nil, "", Context{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Lunge", out[0].Name)
	assert.Equal(t, 1, calls["primary-key"])
	assert.Equal(t, 1, calls["backup-key"])
}

func TestGeminiAnalyzer_NonQuotaErrorDoesNotFallBack(t *testing.T) {
	calls := map[string]int{}
	newClient := func(ctx context.Context, apiKey string) (geminiClient, error) {
		calls[apiKey]++
		return &fakeGeminiClient{err: assertError("invalid argument")}, nil
	}

	a := &geminiAnalyzer{apiKey: "primary-key", backupKey: "backup-key", model: "gemini-2.5-flash", newClient: newClient, log: newTestLogger(t)}

	_, err := a.Analyze(context.Background(), nil, "", Context{})
	require.Error(t, err)
	assert.Equal(t, 1, calls["primary-key"])
	assert.Equal(t, 0, calls["backup-key"])
}

func TestIsQuotaError(t *testing.T) {
	assert.True(t, isQuotaError(assertError("429 Too Many Requests")))
	assert.True(t, isQuotaError(assertError("RESOURCE_EXHAUSTED")))
	assert.False(t, isQuotaError(assertError("permission denied")))
	assert.False(t, isQuotaError(nil))
}

func TestParseJSONObject_StripsMarkdownFence(t *testing.T) {
	obj, err := parseJSONObject("```json\n{\"candidates\": []}\n```")
	require.NoError(t, err)
	assert.Contains(t, obj, "candidates")
}

func (f *fakeGeminiClient) GenerateContent(ctx context.Context, model string, parts []genai.Part) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeGeminiClient) Close() error { return nil }
