package analyzer

import (
	"strings"

	types "github.com/moveset-labs/clipcore/internal/domain"
)

// movementKeywords maps a detection keyword to the canonical exercise name
// reported for it. Grouped loosely by the same movement families diverse
// search categorizes by (spec §4.9): handstand, stretch, core, push,
// hip/leg, balance, wall, floor.
var movementKeywords = map[string]string{
	"handstand":        "Handstand",
	"headstand":        "Headstand",
	"stretch":          "Stretch",
	"hamstring stretch": "Hamstring Stretch",
	"plank":            "Plank",
	"crunch":           "Crunch",
	"sit up":           "Sit Up",
	"situp":            "Sit Up",
	"push up":          "Push Up",
	"pushup":           "Push Up",
	"press up":         "Push Up",
	"squat":            "Squat",
	"lunge":            "Lunge",
	"deadlift":         "Deadlift",
	"hip thrust":       "Hip Thrust",
	"glute bridge":     "Glute Bridge",
	"balance":          "Balance Hold",
	"wall sit":         "Wall Sit",
	"handstand against the wall": "Wall Handstand",
	"burpee":          "Burpee",
	"mountain climber": "Mountain Climber",
	"jumping jack":    "Jumping Jack",
}

// Keyword is the pure keyword-based Analyzer fallback (spec §4.5): used by
// the Orchestrator when a live Analyzer variant fails. It never calls out
// to a model, so it can't fail on anything but bad input.
func Keyword(segments []types.Segment) []Candidate {
	out := []Candidate{}
	for _, seg := range segments {
		span := seg.End() - seg.Start()
		if span < minSegmentSeconds {
			continue
		}
		name, ok := matchKeyword(seg.Text)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Name:       name,
			Start:      seg.Start(),
			End:        seg.End(),
			Confidence: 0.3,
		})
	}
	return out
}

func matchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for kw, name := range movementKeywords {
		if strings.Contains(lower, kw) {
			return name, true
		}
	}
	return "", false
}
