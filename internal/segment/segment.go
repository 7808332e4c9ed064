// Package segment implements the Segment Normalizer (spec.md §4.6):
// validate, merge, deduplicate, extend, and bound candidate exercise
// segments returned by the Multimodal Analyzer.
package segment

import "sort"

const (
	MinDurationSec      = 3.5
	NearDuplicateGapSec = 3.0
	OverlapIoUThreshold = 0.5
	ExtensionCoverage   = 0.80
	MinConfidence       = 0.3
)

// Candidate is one raw exercise detection emitted by the Multimodal
// Analyzer (or its keyword-based fallback) before normalization.
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

// Normalize runs the full §4.6 pipeline: clip to [0, T], drop sub-minimum
// segments, collapse near-duplicates and overlaps, extend a lone short
// survivor, filter by confidence, and return in ascending start order.
func Normalize(candidates []Candidate, videoDurationSec float64) []Candidate {
	out := clipAndFilterShort(candidates, videoDurationSec)
	out = suppressNearDuplicates(out)
	out = consolidateOverlaps(out)
	out = extendLoneSurvivor(out, videoDurationSec)
	out = filterByConfidence(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// clipAndFilterShort clips each candidate's [start, end] into [0, T] and
// drops anything left shorter than the minimum exercise duration.
func clipAndFilterShort(candidates []Candidate, t float64) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Start < 0 {
			c.Start = 0
		}
		if c.End > t {
			c.End = t
		}
		if c.duration() < MinDurationSec {
			continue
		}
		out = append(out, c)
	}
	return out
}

// suppressNearDuplicates collapses any two candidates whose start times
// differ by less than NearDuplicateGapSec, keeping the higher-confidence one
// and breaking ties by longer duration.
func suppressNearDuplicates(candidates []Candidate) []Candidate {
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		replaced := false
		for i, k := range kept {
			if abs(c.Start-k.Start) < NearDuplicateGapSec {
				if preferred(c, k) {
					kept[i] = c
				}
				replaced = true
				break
			}
		}
		if !replaced {
			kept = append(kept, c)
		}
	}
	return kept
}

// consolidateOverlaps collapses any two candidates whose intersection-over-
// union exceeds OverlapIoUThreshold, same tie-break rule as near-duplicates.
func consolidateOverlaps(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		mergedInto := -1
		for i, k := range kept {
			if iou(c, k) > OverlapIoUThreshold {
				mergedInto = i
				break
			}
		}
		if mergedInto == -1 {
			kept = append(kept, c)
			continue
		}
		if preferred(c, kept[mergedInto]) {
			kept[mergedInto] = c
		}
	}
	return kept
}

// extendLoneSurvivor extends the sole surviving candidate to cover the
// entire video when it covers less than ExtensionCoverage of its duration.
func extendLoneSurvivor(candidates []Candidate, t float64) []Candidate {
	if len(candidates) != 1 || t <= 0 {
		return candidates
	}
	c := candidates[0]
	if c.duration()/t < ExtensionCoverage {
		c.Start = 0
		c.End = t
		return []Candidate{c}
	}
	return candidates
}

func filterByConfidence(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence < MinConfidence {
			continue
		}
		out = append(out, c)
	}
	return out
}

// preferred reports whether candidate a should win over candidate b when
// collapsing duplicates/overlaps: higher confidence wins, ties broken by
// longer duration.
func preferred(a, b Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.duration() > b.duration()
}

func iou(a, b Candidate) float64 {
	interStart := max(a.Start, b.Start)
	interEnd := min(a.End, b.End)
	inter := interEnd - interStart
	if inter <= 0 {
		return 0
	}
	union := (a.End - a.Start) + (b.End - b.Start) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
