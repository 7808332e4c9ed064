package keyframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatSamples(diffs []float64) []sample {
	out := make([]sample, len(diffs))
	for i, d := range diffs {
		out[i] = sample{
			frameNumber: i,
			timestampMs: int64(float64(i) / DenseSampleFPS * 1000),
			gray:        []byte{byte(i % 256)},
			diffToPrev:  d,
		}
	}
	return out
}

func TestDetectCuts_AlwaysMarksFirstAndLast(t *testing.T) {
	samples := flatSamples([]float64{0, 0.01, 0.01, 0.02, 0.01})
	cuts := detectCuts(samples)
	assert.True(t, cuts[0])
	assert.True(t, cuts[len(samples)-1])
}

func TestDetectCuts_FlagsLargeJumpAgainstStableBaseline(t *testing.T) {
	diffs := []float64{0, 0.01, 0.01, 0.01, 0.01, 0.01, 0.9, 0.01, 0.01}
	samples := flatSamples(diffs)
	cuts := detectCuts(samples)
	assert.True(t, cuts[6], "large jump at index 6 should be flagged as a cut")
	assert.False(t, cuts[3], "stable-region frame should not be flagged")
}

func TestSegmentsFromCuts_SplitsAtBoundaries(t *testing.T) {
	samples := flatSamples(make([]float64, 10))
	cuts := map[int]bool{0: true, 4: true, 9: true}
	segs := segmentsFromCuts(samples, cuts)
	require.Len(t, segs, 3)
	assert.Equal(t, []int{0, 1, 2, 3}, segs[0])
	assert.Equal(t, []int{4, 5, 6, 7, 8}, segs[1])
	assert.Equal(t, []int{9}, segs[2])
}

func TestPruneSegment_AlwaysKeepsFirstAndLast(t *testing.T) {
	samples := []sample{
		{frameNumber: 0, gray: []byte{0}},
		{frameNumber: 1, gray: []byte{0}},
		{frameNumber: 2, gray: []byte{0}},
		{frameNumber: 3, gray: []byte{0}},
	}
	kept := pruneSegment(samples, []int{0, 1, 2, 3}, 0)
	require.NotEmpty(t, kept)
	assert.Equal(t, 0, kept[0].sampleIdx)
	assert.Equal(t, 3, kept[len(kept)-1].sampleIdx)
}

func TestPruneSegment_KeepsSignificantChangeAboveSegmentMean(t *testing.T) {
	samples := []sample{
		{frameNumber: 0, gray: []byte{0}},
		{frameNumber: 1, gray: []byte{1}},
		{frameNumber: 2, gray: []byte{255}},
		{frameNumber: 3, gray: []byte{255}},
	}
	kept := pruneSegment(samples, []int{0, 1, 2, 3}, 0)
	idxs := make([]int, len(kept))
	for i, k := range kept {
		idxs[i] = k.sampleIdx
	}
	assert.Contains(t, idxs, 2, "the big jump to 255 should survive pruning")
}

func TestFillRateFloor_ReintroducesFrameAcrossLargeGap(t *testing.T) {
	samples := flatSamples(make([]float64, 40))
	kept := []keptFrame{{sampleIdx: 0}, {sampleIdx: 39}}
	filled := fillRateFloor(samples, kept)
	assert.Greater(t, len(filled), 2, "a 39-sample gap at 8fps exceeds 1s and must be filled")
	for i := 1; i < len(filled); i++ {
		gapMs := samples[filled[i].sampleIdx].timestampMs - samples[filled[i-1].sampleIdx].timestampMs
		assert.LessOrEqual(t, gapMs, int64(1000))
	}
}

func sameSecondSamples(n int) []sample {
	out := make([]sample, n)
	for i := range out {
		out[i] = sample{frameNumber: i, timestampMs: int64(i * 10), gray: []byte{byte(i)}}
	}
	return out
}

func TestCapRateCeiling_DropsLowestScoreBeyondMaxFPS(t *testing.T) {
	samples := sameSecondSamples(10)
	kept := make([]keptFrame, 0)
	for i := 0; i < 10; i++ {
		kept = append(kept, keptFrame{sampleIdx: i, diffScore: float64(i)})
	}
	cuts := map[int]bool{0: true, 9: true}
	out := capRateCeiling(samples, kept, cuts)
	assert.LessOrEqual(t, len(out), int(MaxFPS))
	for _, k := range out {
		assert.True(t, k.sampleIdx == 0 || k.diffScore >= 2, "lowest-score non-protected frames should be dropped first")
	}
}

func TestCapRateCeiling_NeverDropsProtectedCutBoundary(t *testing.T) {
	samples := sameSecondSamples(10)
	kept := make([]keptFrame, 0)
	for i := 0; i < 10; i++ {
		kept = append(kept, keptFrame{sampleIdx: i, diffScore: 0})
	}
	cuts := map[int]bool{0: true, 3: true, 9: true}
	out := capRateCeiling(samples, kept, cuts)
	found := false
	for _, k := range out {
		if k.sampleIdx == 3 {
			found = true
		}
	}
	assert.True(t, found, "cut boundary at index 3 must survive even at zero score")
}
