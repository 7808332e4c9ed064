package analyzer

import (
	"context"
	"fmt"

	"github.com/moveset-labs/clipcore/internal/keyframe"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/openai"
)

// maxFramesPerCall bounds the number of keyframes sent in a single request;
// the Keyframe Extractor can return up to 8fps worth of frames for a long
// clip, which would otherwise blow the model's image-input budget.
const maxFramesPerCall = 48

type openaiAnalyzer struct {
	log    *logger.Logger
	client openai.Client
}

func NewOpenAI(log *logger.Logger, client openai.Client) (Analyzer, error) {
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &openaiAnalyzer{log: log.With("service", "OpenAIAnalyzer"), client: client}, nil
}

func (a *openaiAnalyzer) Analyze(ctx context.Context, frames []keyframe.Frame, transcript string, actx Context) ([]Candidate, error) {
	if len(frames) > maxFramesPerCall {
		frames = sampleEvenly(frames, maxFramesPerCall)
	}

	uris, err := framesToDataURIs(frames)
	if err != nil {
		return nil, err
	}
	images := make([]openai.ImageInput, 0, len(uris))
	for _, u := range uris {
		images = append(images, openai.ImageInput{ImageURL: u, Detail: "low"})
	}

	obj, err := a.client.GenerateJSONWithImages(ctx, systemPrompt, buildUserPrompt(transcript, actx), images, "exercise_candidates", candidateSchema())
	if err != nil {
		return nil, err
	}
	return enforceInvariants(parseCandidates(obj)), nil
}

// sampleEvenly picks n frames spread across the full sequence, always
// keeping the first and last, so a long clip doesn't lose its beginning or
// end to truncation.
func sampleEvenly(frames []keyframe.Frame, n int) []keyframe.Frame {
	if n <= 0 || len(frames) <= n {
		return frames
	}
	if n == 1 {
		return frames[:1]
	}
	out := make([]keyframe.Frame, 0, n)
	step := float64(len(frames)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		if idx >= len(frames) {
			idx = len(frames) - 1
		}
		out = append(out, frames[idx])
	}
	return out
}
