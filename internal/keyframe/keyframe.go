// Package keyframe implements the Keyframe Extractor (spec.md §4.4): cut
// detection, dense sampling, change-significance pruning, and fps-bound
// enforcement over a decoded video, producing the minimum frame set
// sufficient for the Multimodal Analyzer to reason about complete movements.
package keyframe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moveset-labs/clipcore/internal/platform/ctxutil"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

const (
	DenseSampleFPS = 8.0
	MinFPS         = 1.0
	MaxFPS         = 8.0
	cutStdDevK     = 3.0
	cutWindow      = 15
	analysisWidth  = 64
	analysisHeight = 36
)

// Frame is one kept frame: enough metadata for the Multimodal Analyzer to
// reason about placement without reparsing the video.
type Frame struct {
	Path        string
	CutIndex    int
	FrameNumber int
	TimestampMs int64
	DiffScore   float64
}

type Extractor interface {
	Extract(ctx context.Context, videoPath string, outDir string) ([]Frame, error)
}

type extractor struct {
	log        *logger.Logger
	ffmpegPath string
}

func New(log *logger.Logger) Extractor {
	return &extractor{log: log.With("service", "KeyframeExtractor"), ffmpegPath: "ffmpeg"}
}

// sample is one decoded frame from the dense-sampling analysis pass.
type sample struct {
	frameNumber int
	timestampMs int64
	gray        []byte
	diffToPrev  float64
}

func (e *extractor) Extract(ctx context.Context, videoPath, outDir string) ([]Frame, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	samples, err := e.decodeAnalysisFrames(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no frames decoded from %s", videoPath)
	}

	cuts := detectCuts(samples)
	kept := pruneAndBound(samples, cuts)

	return e.materializeFrames(ctx, videoPath, outDir, samples, kept)
}

// decodeAnalysisFrames runs the dense-sampling pass: ffmpeg resamples the
// video to DenseSampleFPS, downscales to a tiny grayscale frame, and streams
// raw pixels over stdout so a diff score can be computed frame-to-frame
// without round-tripping through disk.
func (e *extractor) decodeAnalysisFrames(ctx context.Context, videoPath string) ([]sample, error) {
	if _, err := exec.LookPath(e.ffmpegPath); err != nil {
		return nil, fmt.Errorf("missing required binary %q in PATH: %w", e.ffmpegPath, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	vf := fmt.Sprintf("fps=%0.3f,scale=%d:%d,format=gray", DenseSampleFPS, analysisWidth, analysisHeight)
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-i", videoPath,
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	frameSize := analysisWidth * analysisHeight
	reader := bufio.NewReaderSize(stdout, frameSize*4)
	samples := make([]sample, 0, 256)
	buf := make([]byte, frameSize)
	var prev []byte
	for frameNumber := 0; ; frameNumber++ {
		if _, err := io.ReadFull(reader, buf); err != nil {
			break
		}
		gray := append([]byte(nil), buf...)
		diff := 0.0
		if prev != nil {
			diff = meanAbsDiff(prev, gray)
		}
		samples = append(samples, sample{
			frameNumber: frameNumber,
			timestampMs: int64(float64(frameNumber) / DenseSampleFPS * 1000),
			gray:        gray,
			diffToPrev:  diff,
		})
		prev = gray
	}
	if waitErr := cmd.Wait(); waitErr != nil && len(samples) == 0 {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", waitErr)
	}
	return samples, nil
}

func meanAbsDiff(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum int64
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += int64(d)
	}
	return float64(sum) / float64(len(a)) / 255.0
}

// detectCuts declares a cut wherever the frame-difference score exceeds an
// adaptive threshold over a trailing window (mean + k*stdev). The first and
// last sample are always cut boundaries.
func detectCuts(samples []sample) map[int]bool {
	cuts := map[int]bool{0: true, len(samples) - 1: true}
	for i := 1; i < len(samples); i++ {
		lo := i - cutWindow
		if lo < 0 {
			lo = 0
		}
		mean, stdev := meanStdev(samples[lo:i])
		threshold := mean + cutStdDevK*stdev
		if samples[i].diffToPrev > 0 && samples[i].diffToPrev > threshold {
			cuts[i] = true
		}
	}
	return cuts
}

func meanStdev(window []sample) (float64, float64) {
	if len(window) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range window {
		sum += s.diffToPrev
	}
	mean := sum / float64(len(window))
	var sq float64
	for _, s := range window {
		d := s.diffToPrev - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(window)))
}

// keptFrame is an internal record linking a kept sample back to its cut
// segment, before rate-bound enforcement.
type keptFrame struct {
	sampleIdx int
	cutIndex  int
	diffScore float64
}

func pruneAndBound(samples []sample, cuts map[int]bool) []keptFrame {
	kept := make([]keptFrame, 0, len(samples))
	for cutIndex, seg := range segmentsFromCuts(samples, cuts) {
		kept = append(kept, pruneSegment(samples, seg, cutIndex)...)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].sampleIdx < kept[j].sampleIdx })
	kept = fillRateFloor(samples, kept)
	kept = capRateCeiling(samples, kept, cuts)
	sort.Slice(kept, func(i, j int) bool { return kept[i].sampleIdx < kept[j].sampleIdx })
	return kept
}

// segmentsFromCuts splits the sample stream into cut-delimited runs, in
// ascending order.
func segmentsFromCuts(samples []sample, cuts map[int]bool) [][]int {
	boundaries := make([]int, 0)
	for i := range samples {
		if cuts[i] {
			boundaries = append(boundaries, i)
		}
	}
	sort.Ints(boundaries)

	segments := make([][]int, 0, len(boundaries))
	for i, start := range boundaries {
		end := len(samples) - 1
		if i+1 < len(boundaries) {
			end = boundaries[i+1] - 1
			if end < start {
				end = start
			}
		}
		seg := make([]int, 0, end-start+1)
		for idx := start; idx <= end; idx++ {
			seg = append(seg, idx)
		}
		segments = append(segments, seg)
	}
	return segments
}

// pruneSegment keeps the segment's first frame, its last frame, and any
// frame whose difference against the previously kept frame exceeds the
// segment's own mean difference.
func pruneSegment(samples []sample, seg []int, cutIndex int) []keptFrame {
	if len(seg) == 0 {
		return nil
	}
	threshold := segmentMeanDiff(samples, seg)
	kept := []keptFrame{{sampleIdx: seg[0], cutIndex: cutIndex, diffScore: samples[seg[0]].diffToPrev}}
	lastKeptGray := samples[seg[0]].gray
	for i, idx := range seg {
		if i == 0 {
			continue
		}
		score := meanAbsDiff(lastKeptGray, samples[idx].gray)
		isLast := i == len(seg)-1
		if score > threshold || isLast {
			kept = append(kept, keptFrame{sampleIdx: idx, cutIndex: cutIndex, diffScore: score})
			lastKeptGray = samples[idx].gray
		}
	}
	return kept
}

func segmentMeanDiff(samples []sample, seg []int) float64 {
	if len(seg) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(seg); i++ {
		sum += meanAbsDiff(samples[seg[i-1]].gray, samples[seg[i]].gray)
	}
	return sum / float64(len(seg)-1)
}

// fillRateFloor reintroduces an evenly placed frame from the decoded stream
// whenever pruning leaves a gap of more than one second.
func fillRateFloor(samples []sample, kept []keptFrame) []keptFrame {
	if len(kept) == 0 {
		return kept
	}
	out := make([]keptFrame, 0, len(kept))
	out = append(out, kept[0])
	for i := 1; i < len(kept); i++ {
		next := kept[i]
		for {
			prevTs := samples[out[len(out)-1].sampleIdx].timestampMs
			curTs := samples[next.sampleIdx].timestampMs
			if curTs-prevTs <= 1000 {
				break
			}
			targetMs := prevTs + 1000
			idx := nearestSampleBetween(samples, out[len(out)-1].sampleIdx, next.sampleIdx, targetMs)
			if idx <= out[len(out)-1].sampleIdx || idx >= next.sampleIdx {
				break
			}
			out = append(out, keptFrame{sampleIdx: idx, cutIndex: next.cutIndex, diffScore: samples[idx].diffToPrev})
		}
		out = append(out, next)
	}
	return out
}

func nearestSampleBetween(samples []sample, lo, hi int, targetMs int64) int {
	best := lo + 1
	bestDiff := int64(math.MaxInt64)
	for idx := lo + 1; idx < hi; idx++ {
		d := samples[idx].timestampMs - targetMs
		if d < 0 {
			d = -d
		}
		if d < bestDiff {
			bestDiff = d
			best = idx
		}
	}
	return best
}

// capRateCeiling drops the lowest-score frames within any whole second of
// timestamps (0–999 ms, 1000–1999 ms, …) that holds more than MaxFPS kept
// frames. Cut boundaries and the overall
// first/last frame are never dropped.
func capRateCeiling(samples []sample, kept []keptFrame, cuts map[int]bool) []keptFrame {
	bySecond := map[int64][]int{}
	for i, k := range kept {
		sec := samples[k.sampleIdx].timestampMs / 1000
		bySecond[sec] = append(bySecond[sec], i)
	}

	drop := map[int]bool{}
	for _, idxs := range bySecond {
		if len(idxs) <= int(MaxFPS) {
			continue
		}
		droppable := make([]int, 0, len(idxs))
		for _, i := range idxs {
			if protected(samples, kept[i], cuts) {
				continue
			}
			droppable = append(droppable, i)
		}
		sort.Slice(droppable, func(a, b int) bool { return kept[droppable[a]].diffScore < kept[droppable[b]].diffScore })
		excess := len(idxs) - int(MaxFPS)
		if excess > len(droppable) {
			excess = len(droppable)
		}
		for i := 0; i < excess; i++ {
			drop[droppable[i]] = true
		}
	}

	out := make([]keptFrame, 0, len(kept))
	for i, k := range kept {
		if drop[i] {
			continue
		}
		out = append(out, k)
	}
	return out
}

func protected(samples []sample, k keptFrame, cuts map[int]bool) bool {
	return cuts[k.sampleIdx] || k.sampleIdx == 0 || k.sampleIdx == len(samples)-1
}

// materializeFrames re-decodes the video at DenseSampleFPS and selects only
// the kept frame numbers, so the files handed to the Analyzer are full
// resolution rather than the tiny grayscale analysis frames.
func (e *extractor) materializeFrames(ctx context.Context, videoPath, outDir string, samples []sample, kept []keptFrame) ([]Frame, error) {
	if len(kept) == 0 {
		return nil, fmt.Errorf("no frames survived pruning for %s", videoPath)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	exprs := make([]string, 0, len(kept))
	for _, k := range kept {
		exprs = append(exprs, fmt.Sprintf("eq(n\\,%d)", k.sampleIdx))
	}
	vf := fmt.Sprintf("fps=%0.3f,select='%s'", DenseSampleFPS, strings.Join(exprs, "+"))
	pattern := filepath.Join(outDir, "raw_%06d.jpg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-i", videoPath,
		"-vf", vf,
		"-vsync", "0",
		"-q:v", "3",
		pattern,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg select frames failed: %w; out=%s", err, string(out))
	}

	rawPaths, err := sortedWithPrefix(outDir, "raw_")
	if err != nil {
		return nil, err
	}
	if len(rawPaths) != len(kept) {
		return nil, fmt.Errorf("ffmpeg produced %d frames, expected %d", len(rawPaths), len(kept))
	}

	frames := make([]Frame, 0, len(kept))
	for i, k := range kept {
		s := samples[k.sampleIdx]
		finalPath := filepath.Join(outDir, frameFileName(k.cutIndex, s.frameNumber, s.timestampMs, k.diffScore))
		if err := os.Rename(rawPaths[i], finalPath); err != nil {
			return nil, fmt.Errorf("rename frame: %w", err)
		}
		frames = append(frames, Frame{
			Path:        finalPath,
			CutIndex:    k.cutIndex,
			FrameNumber: s.frameNumber,
			TimestampMs: s.timestampMs,
			DiffScore:   k.diffScore,
		})
	}
	return frames, nil
}

func frameFileName(cutIndex, frameNumber int, timestampMs int64, diffScore float64) string {
	return fmt.Sprintf("cut%03d_frame%06d_t%08dms_d%04d.jpg", cutIndex, frameNumber, timestampMs, int(diffScore*1000))
}

func sortedWithPrefix(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
