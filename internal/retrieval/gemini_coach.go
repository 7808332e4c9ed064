package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// geminiCoach implements StoryCoach against Gemini, falling back to a
// backup API key on quota-shaped errors. Grounded in
// original_source/app/core/exercise_selector.py's
// primary/backup-key fallback for its second-pass routine curator.
type geminiCoach struct {
	log       *logger.Logger
	apiKey    string
	backupKey string
	model     string
}

// NewGeminiCoach builds a Gemini-backed StoryCoach for story generation and
// routine curation, independent of the Multimodal Analyzer's Gemini
// variant since neither needs image parts.
func NewGeminiCoach(log *logger.Logger, apiKey, backupKey, model string) (StoryCoach, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &geminiCoach{log: log.With("service", "GeminiStoryCoach"), apiKey: apiKey, backupKey: backupKey, model: model}, nil
}

func (c *geminiCoach) GenerateText(ctx context.Context, system, user string) (string, error) {
	text, err := c.generate(ctx, c.apiKey, system, user)
	if err != nil && isQuotaShaped(err) && strings.TrimSpace(c.backupKey) != "" {
		c.log.Warn("gemini primary key quota exhausted, retrying with backup key")
		text, err = c.generate(ctx, c.backupKey, system, user)
	}
	return text, err
}

func (c *geminiCoach) generate(ctx context.Context, apiKey, system, user string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(system), genai.Text(user))
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

func isQuotaShaped(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429") || strings.Contains(msg, "QUOTA")
}
