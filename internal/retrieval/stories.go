package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// StoryCoach is the narrow text-generation capability generate_stories and
// curate_routine need: a plain system/user prompt in, plain text out. Both
// openai.Client (directly) and a Gemini-backed adapter satisfy it.
type StoryCoach interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// fallbackStories is returned when the StoryCoach fails, so a degraded
// coaching model never blocks routine building entirely. Grounded in
// original_source/app/core/exercise_story_generator.py's fixed fallback
// list, reworded for this package's own voice.
var fallbackStories = []string{
	"A short mobility sequence to loosen up hips and shoulders before a workout",
	"A core-focused segment that builds the stability needed for harder movements",
	"A beginner-friendly stretch to improve overall flexibility",
	"A balance-building movement practiced against a wall for support",
	"A low-impact routine suitable for someone easing back into exercise",
}

const storyCoachSystemPrompt = "You are an expert fitness coach. Given a user's free-text requirements, " +
	"write distinct, clear, actionable exercise stories. Each story describes one specific exercise or " +
	"movement that would help the user reach their goal. Be concise. Return the stories as a numbered list, one per line."

// GenerateStories turns a free-text user prompt into up to n short
// descriptive stories, each of which becomes one diverse-search query
// (spec §4.12). On coach failure it returns the fixed fallback list,
// truncated to n.
func GenerateStories(ctx context.Context, coach StoryCoach, userPrompt string, n int) ([]string, error) {
	if n <= 0 {
		n = 5
	}
	userMessage := fmt.Sprintf("USER REQUIREMENTS: %s\n\nReturn up to %d stories.", strings.TrimSpace(userPrompt), n)
	text, err := coach.GenerateText(ctx, storyCoachSystemPrompt, userMessage)
	if err != nil {
		return truncateStories(fallbackStories, n), nil
	}
	stories := parseNumberedList(text)
	if len(stories) == 0 {
		return truncateStories(fallbackStories, n), nil
	}
	return truncateStories(stories, n), nil
}

// parseNumberedList extracts story lines from a numbered-list or
// bulleted-list LLM response, stripping the leading marker from each line.
func parseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, stripListMarker(line))
	}
	return out
}

func stripListMarker(line string) string {
	trimmed := strings.TrimLeft(line, "0123456789.)-•* \t")
	if trimmed == "" {
		return line
	}
	return trimmed
}

func truncateStories(stories []string, n int) []string {
	if len(stories) <= n {
		return stories
	}
	return stories[:n]
}
