// Package materializer implements the Clip Materializer (spec §4.7):
// extracting a self-contained clip file from a source media file over
// [start, end], then verifying the result actually is what was asked for.
package materializer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/moveset-labs/clipcore/internal/platform/ctxutil"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// Reason classifies why materialization failed.
type Reason string

const (
	ReasonToolExitNonzero  Reason = "tool_exit_nonzero"
	ReasonProbeFailed      Reason = "probe_failed"
	ReasonDurationMismatch Reason = "duration_mismatch"
	ReasonIO               Reason = "io"
)

// DurationToleranceSeconds is how far a materialized clip's probed duration
// may drift from the requested span before it is rejected.
const DurationToleranceSeconds = 0.25

type Error struct {
	Reason Reason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("materialize failed (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("materialize failed (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

type Materializer interface {
	Materialize(ctx context.Context, sourceMedia string, start, end float64, targetPath string) error
}

type ffmpegMaterializer struct {
	log         *logger.Logger
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

func New(log *logger.Logger) Materializer {
	return &ffmpegMaterializer{
		log:         log.With("service", "ClipMaterializer"),
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		timeout:     10 * time.Minute,
	}
}

func (m *ffmpegMaterializer) Materialize(ctx context.Context, sourceMedia string, start, end float64, targetPath string) error {
	ctx = ctxutil.Default(ctx)
	if end <= start {
		return &Error{Reason: ReasonIO, Cause: fmt.Errorf("end %.3f must be after start %.3f", end, start)}
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return &Error{Reason: ReasonIO, Cause: fmt.Errorf("mkdir target dir: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	duration := end - start
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", sourceMedia,
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-c", "copy",
		targetPath,
	}
	cmd := exec.CommandContext(runCtx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		m.cleanup(targetPath)
		return &Error{Reason: ReasonToolExitNonzero, Cause: fmt.Errorf("ffmpeg: %w; out=%s", err, string(out))}
	}

	info, statErr := os.Stat(targetPath)
	if statErr != nil || info.Size() == 0 {
		m.cleanup(targetPath)
		return &Error{Reason: ReasonIO, Cause: fmt.Errorf("materialized file missing or empty: %s", targetPath)}
	}

	probedDuration, hasVideo, probeErr := m.probe(runCtx, targetPath)
	if probeErr != nil {
		m.cleanup(targetPath)
		return &Error{Reason: ReasonProbeFailed, Cause: probeErr}
	}
	if !hasVideo {
		m.cleanup(targetPath)
		return &Error{Reason: ReasonProbeFailed, Cause: fmt.Errorf("no readable video stream in %s", targetPath)}
	}
	if diff := probedDuration - duration; diff > DurationToleranceSeconds || diff < -DurationToleranceSeconds {
		m.cleanup(targetPath)
		return &Error{Reason: ReasonDurationMismatch, Cause: fmt.Errorf("probed duration %.3f differs from requested %.3f by more than %.2fs", probedDuration, duration, DurationToleranceSeconds)}
	}

	return nil
}

// Duration probes a source media file's total duration via ffprobe, for
// callers (the Orchestrator) that need it to clip candidate segments into
// [0, T] before materializing any of them.
func Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "csv=p=0", path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", string(out), err)
	}
	return d, nil
}

func (m *ffmpegMaterializer) probe(ctx context.Context, path string) (duration float64, hasVideo bool, err error) {
	durCmd := exec.CommandContext(ctx, m.ffprobePath, "-v", "error", "-show_entries", "format=duration", "-of", "csv=p=0", path)
	durOut, err := durCmd.Output()
	if err != nil {
		return 0, false, fmt.Errorf("ffprobe duration: %w", err)
	}
	duration, err = strconv.ParseFloat(strings.TrimSpace(string(durOut)), 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse probed duration %q: %w", string(durOut), err)
	}

	streamCmd := exec.CommandContext(ctx, m.ffprobePath, "-v", "error", "-select_streams", "v", "-show_entries", "stream=codec_type", "-of", "csv=p=0", path)
	streamOut, err := streamCmd.Output()
	if err != nil {
		return duration, false, fmt.Errorf("ffprobe stream: %w", err)
	}
	hasVideo = strings.Contains(string(streamOut), "video")
	return duration, hasVideo, nil
}

func (m *ffmpegMaterializer) cleanup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.log.Warn("failed to remove partial clip", "path", path, "error", err)
	}
}

// Slug lowercases name, replaces non-alphanumerics with underscores, and
// truncates to 80 characters, per the output filename scheme (spec §4.7).
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// ShortHash is the short, deterministic disambiguator appended to a
// materialized clip's filename: a source/name/start fingerprint collapses
// any filename collision between two exercises that slug identically.
func ShortHash(name, source string, start float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.3f", name, source, start)))
	return hex.EncodeToString(sum[:])[:12]
}

// Filename builds the output filename per spec §4.7:
// {slug(name)}_{short_hash(name,source,start)}.ext
func Filename(name, source string, start float64, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s_%s.%s", Slug(name), ShortHash(name, source, start), ext)
}
