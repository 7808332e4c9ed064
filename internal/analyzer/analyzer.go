// Package analyzer implements the Multimodal Analyzer capability (spec
// §4.5): turning a set of keyframes and an optional transcript into
// candidate exercise segments. Two live variants are provided, selected by
// AI_PROVIDER, plus a pure keyword fallback the Orchestrator falls back to
// when the live variant fails.
package analyzer

import (
	"context"

	"github.com/moveset-labs/clipcore/internal/keyframe"
)

// Candidate is one detected movement, before the Segment Normalizer's
// clipping/dedup/consolidation pass.
type Candidate struct {
	Name         string
	Start        float64
	End          float64
	HowTo        string
	Benefits     string
	Counteracts  string
	FitnessLevel int
	Intensity    int
	RoundsReps   string
	Confidence   float64
}

func (c Candidate) duration() float64 { return c.End - c.Start }

// minSegmentSeconds is the Analyzer-enforced floor on detected segment
// length (spec §4.5: "Detect only segments ≥ 3.5 s long").
const minSegmentSeconds = 3.5

// Context carries the per-call framing an Analyzer implementation should
// weigh: the source platform, and the caller's position within a carousel
// post (the first item of a carousel is often a hook, not an exercise).
type Context struct {
	Platform         string
	CarouselPosition int
	CarouselCount    int
}

func (c Context) isCarouselHook() bool {
	return c.CarouselCount > 1 && c.CarouselPosition == 1
}

type Analyzer interface {
	Analyze(ctx context.Context, frames []keyframe.Frame, transcript string, actx Context) ([]Candidate, error)
}

// enforceInvariants applies the Analyzer-side invariants every
// implementation must hold regardless of how the underlying model behaved:
// minimum duration and confidence bounds. Overlap consolidation and
// near-duplicate collapse are the Segment Normalizer's job (spec §4.6), not
// repeated here.
func enforceInvariants(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.End < c.Start {
			c.Start, c.End = c.End, c.Start
		}
		if c.duration() < minSegmentSeconds {
			continue
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		out = append(out, c)
	}
	return out
}
