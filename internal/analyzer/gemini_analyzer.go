package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/moveset-labs/clipcore/internal/keyframe"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// geminiAnalyzer calls Gemini with a primary API key, falling over to a
// backup key on quota-shaped errors without consuming the caller's retry
// budget for the call itself — mirroring the primary/backup credential
// fallback used for Gemini-backed routine curation in the original
// implementation.
type geminiAnalyzer struct {
	log       *logger.Logger
	apiKey    string
	backupKey string
	model     string

	newClient func(ctx context.Context, apiKey string) (geminiClient, error)
}

// geminiClient is the narrow surface this package needs from *genai.Client,
// so tests can substitute a fake without a live API key.
type geminiClient interface {
	GenerateContent(ctx context.Context, model string, parts []genai.Part) (string, error)
	Close() error
}

func NewGemini(log *logger.Logger, apiKey, backupKey, model string) (Analyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiAnalyzer{
		log:       log.With("service", "GeminiAnalyzer"),
		apiKey:    apiKey,
		backupKey: backupKey,
		model:     model,
		newClient: newRealGeminiClient,
	}, nil
}

func (a *geminiAnalyzer) Analyze(ctx context.Context, frames []keyframe.Frame, transcript string, actx Context) ([]Candidate, error) {
	parts, err := a.buildParts(frames, transcript, actx)
	if err != nil {
		return nil, err
	}

	text, err := a.generate(ctx, a.apiKey, parts)
	if err != nil && isQuotaError(err) && strings.TrimSpace(a.backupKey) != "" {
		a.log.Warn("gemini primary key quota exhausted, retrying with backup key")
		text, err = a.generate(ctx, a.backupKey, parts)
	}
	if err != nil {
		return nil, err
	}

	obj, err := parseJSONObject(text)
	if err != nil {
		return nil, err
	}
	return enforceInvariants(parseCandidates(obj)), nil
}

func (a *geminiAnalyzer) generate(ctx context.Context, apiKey string, parts []genai.Part) (string, error) {
	client, err := a.newClient(ctx, apiKey)
	if err != nil {
		return "", err
	}
	defer client.Close()
	return client.GenerateContent(ctx, a.model, parts)
}

func (a *geminiAnalyzer) buildParts(frames []keyframe.Frame, transcript string, actx Context) ([]genai.Part, error) {
	if len(frames) > maxFramesPerCall {
		frames = sampleEvenly(frames, maxFramesPerCall)
	}

	parts := []genai.Part{
		genai.Text(systemPrompt),
		genai.Text(buildUserPrompt(transcript, actx)),
		genai.Text(jsonResponseInstruction),
	}
	for _, f := range frames {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", f.Path, err)
		}
		parts = append(parts, genai.ImageData(imageFormat(f.Path), data))
	}
	return parts, nil
}

const jsonResponseInstruction = `Respond with a single JSON object matching this shape and nothing else:
{"candidates": [{"name": "...", "start": 0.0, "end": 0.0, "how_to": "...", "benefits": "...",
"counteracts": "...", "fitness_level": 0, "intensity": 0, "rounds_reps": "...", "confidence": 0.0}]}`

func imageFormat(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".png") {
		return "png"
	}
	return "jpeg"
}

func parseJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("parse gemini response as json: %w; text=%s", err, text)
	}
	return obj, nil
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429") || strings.Contains(msg, "QUOTA")
}

type realGeminiClient struct {
	client *genai.Client
}

func newRealGeminiClient(ctx context.Context, apiKey string) (geminiClient, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &realGeminiClient{client: c}, nil
}

func (r *realGeminiClient) GenerateContent(ctx context.Context, model string, parts []genai.Part) (string, error) {
	m := r.client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return b.String(), nil
}

func (r *realGeminiClient) Close() error { return r.client.Close() }
