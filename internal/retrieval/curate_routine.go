package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// CurationRequest carries what CurateRoutine needs to pick a non-redundant,
// well-rounded subset of diverse-search candidates across several stories.
// Grounded in original_source/app/core/exercise_selector.py's
// ExerciseSelector.select_intelligent_routine.
type CurationRequest struct {
	Stories           []string
	UserRequirements  string
	TargetDurationSec float64
	IntensityLevel    string
}

const curatorSystemPrompt = "You are an expert fitness coach curating a workout routine from a set of " +
	"candidate exercise clips. Avoid exercises that are too similar in movement pattern or target area. " +
	"Create logical flow and variety. Respect the target duration and intensity. Respond with a single JSON " +
	"object: {\"selected_clips\": [{\"clip_number\": 1}, ...]} using the 1-based clip numbers from the list " +
	"provided, ordered the way they should appear in the routine, and nothing else."

// CurateRoutine runs diverse search for every story, pools the candidates,
// and asks a StoryCoach (acting as a second-pass curator) to pick and order
// a non-redundant, well-rounded subset that fits the target duration. On
// coach failure it falls back to a simple greedy fill by score, grounded in
// exercise_selector.py's _fallback_selection.
func CurateRoutine(
	ctx context.Context,
	store vector.Store,
	embedder Embedder,
	exercises exerciserepo.ExerciseRepo,
	coach StoryCoach,
	req CurationRequest,
	candidatesPerStory int,
) ([]*types.Exercise, error) {
	if candidatesPerStory <= 0 {
		candidatesPerStory = 8
	}

	pool, err := pooledCandidates(ctx, store, embedder, exercises, req.Stories, candidatesPerStory)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	selection, err := curateWithCoach(ctx, coach, pool, req)
	if err != nil || len(selection) == 0 {
		return fallbackSelection(pool, req.TargetDurationSec), nil
	}
	return finalizeSelection(selection, pool, req.TargetDurationSec), nil
}

// pooledCandidates runs diverse search once per story and deduplicates the
// union by exercise id, preserving first-seen order.
func pooledCandidates(
	ctx context.Context,
	store vector.Store,
	embedder Embedder,
	exercises exerciserepo.ExerciseRepo,
	stories []string,
	candidatesPerStory int,
) ([]RankedExercise, error) {
	seen := make(map[string]bool)
	var pool []RankedExercise
	for _, story := range stories {
		ranked, err := DiverseSearch(ctx, store, embedder, exercises, story, candidatesPerStory, DefaultScoreThreshold, DefaultMaxPerCategory)
		if err != nil {
			return nil, fmt.Errorf("diverse search for story %q: %w", story, err)
		}
		for _, r := range ranked {
			key := r.Exercise.ID.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			pool = append(pool, r)
		}
	}
	return pool, nil
}

func curateWithCoach(ctx context.Context, coach StoryCoach, pool []RankedExercise, req CurationRequest) ([]int, error) {
	if coach == nil {
		return nil, fmt.Errorf("no curator coach configured")
	}
	user := buildCurationPrompt(pool, req)
	text, err := coach.GenerateText(ctx, curatorSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return parseSelectedClipNumbers(text)
}

func buildCurationPrompt(pool []RankedExercise, req CurationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER REQUIREMENTS: %s\n", req.UserRequirements)
	fmt.Fprintf(&b, "TARGET DURATION: %.0f seconds\n", req.TargetDurationSec)
	fmt.Fprintf(&b, "INTENSITY LEVEL: %s\n\n", req.IntensityLevel)
	b.WriteString("REQUIREMENT STORIES:\n")
	for _, s := range req.Stories {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nAVAILABLE CLIPS:\n")
	for i, r := range pool {
		ex := r.Exercise
		fmt.Fprintf(&b, "Clip %d: %s (%.1fs) - %s. Benefits: %s. Counteracts: %s. Fitness level %d/10, intensity %d/10, relevance %.3f.\n",
			i+1, ex.Name, ex.Duration(), ex.HowTo, ex.Benefits, ex.Counteracts, ex.FitnessLevel, ex.Intensity, r.Score)
	}
	return b.String()
}

func parseSelectedClipNumbers(text string) ([]int, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no json object in curator response")
	}
	var parsed struct {
		SelectedClips []struct {
			ClipNumber int `json:"clip_number"`
		} `json:"selected_clips"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parse curator response: %w", err)
	}
	out := make([]int, 0, len(parsed.SelectedClips))
	for _, c := range parsed.SelectedClips {
		out = append(out, c.ClipNumber)
	}
	return out, nil
}

func finalizeSelection(clipNumbers []int, pool []RankedExercise, targetDuration float64) []*types.Exercise {
	var out []*types.Exercise
	var total float64
	for _, n := range clipNumbers {
		if n < 1 || n > len(pool) {
			continue
		}
		ex := pool[n-1].Exercise
		duration := ex.Duration()
		if targetDuration > 0 && total+duration > targetDuration {
			continue
		}
		out = append(out, ex)
		total += duration
	}
	return out
}

func fallbackSelection(pool []RankedExercise, targetDuration float64) []*types.Exercise {
	var out []*types.Exercise
	var total float64
	for _, r := range pool {
		duration := r.Exercise.Duration()
		if targetDuration > 0 && total+duration > targetDuration {
			break
		}
		out = append(out, r.Exercise)
		total += duration
	}
	return out
}
