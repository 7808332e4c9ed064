package analyzer

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moveset-labs/clipcore/internal/keyframe"
)

const systemPrompt = `You are a fitness video analyst. Given ordered keyframes from a short video,
and optionally a transcript, identify distinct exercise movements demonstrated in the video.

Rules:
- Only report a movement if you can see it demonstrated; never invent one.
- Only report segments at least 3.5 seconds long.
- Do not report overlapping segments for the same movement. If a flow of several moves is shown
  back to back, report either the flow as one segment or its components as separate segments, not both.
- If no exercise is present, return an empty candidates list.
- confidence must be a number between 0 and 1.`

func buildUserPrompt(transcript string, actx Context) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Platform: %s\n", orDefault(actx.Platform, "unknown")))
	if actx.CarouselCount > 1 {
		b.WriteString(fmt.Sprintf("Carousel position %d of %d.\n", actx.CarouselPosition, actx.CarouselCount))
		if actx.isCarouselHook() {
			b.WriteString("Note: the first item of a carousel is often an introductory hook rather than an exercise demonstration.\n")
		}
	}
	if strings.TrimSpace(transcript) != "" {
		b.WriteString("Transcript:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	b.WriteString("Keyframes are attached in chronological order. Identify exercise candidates.")
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func candidateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"candidates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":          map[string]any{"type": "string"},
						"start":         map[string]any{"type": "number"},
						"end":           map[string]any{"type": "number"},
						"how_to":        map[string]any{"type": "string"},
						"benefits":      map[string]any{"type": "string"},
						"counteracts":   map[string]any{"type": "string"},
						"fitness_level": map[string]any{"type": "integer"},
						"intensity":     map[string]any{"type": "integer"},
						"rounds_reps":   map[string]any{"type": "string"},
						"confidence":    map[string]any{"type": "number"},
					},
					"required":             []string{"name", "start", "end", "confidence"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"candidates"},
		"additionalProperties": false,
	}
}

func parseCandidates(obj map[string]any) []Candidate {
	raw, _ := obj["candidates"].([]any)
	out := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Name:         str(m["name"]),
			Start:        num(m["start"]),
			End:          num(m["end"]),
			HowTo:        str(m["how_to"]),
			Benefits:     str(m["benefits"]),
			Counteracts:  str(m["counteracts"]),
			FitnessLevel: int(num(m["fitness_level"])),
			Intensity:    int(num(m["intensity"])),
			RoundsReps:   str(m["rounds_reps"]),
			Confidence:   num(m["confidence"]),
		})
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// framesToDataURIs reads each keyframe off disk and encodes it as a
// data:image/...;base64,... URI, since the keyframes live on local disk and
// the OpenAI Responses API image input accepts either https:// or data URIs.
func framesToDataURIs(frames []keyframe.Frame) ([]string, error) {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", f.Path, err)
		}
		mime := mimeForExt(filepath.Ext(f.Path))
		out = append(out, fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)))
	}
	return out, nil
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
