// Package transcriber implements the Transcriber capability (spec §4.3):
// turning a local media file into time-ordered transcript segments. The
// shipped variant stages the file in GCS and delegates to Video
// Intelligence's speech transcription annotation.
package transcriber

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/gcp"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// Error is the typed failure a Transcriber implementation returns. The
// Orchestrator degrades gracefully on it: the transcript becomes empty
// rather than failing the whole job.
type Error struct {
	MediaFile string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe %s failed: %v", e.MediaFile, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

type Transcriber interface {
	Transcribe(ctx context.Context, mediaFile string) ([]types.Segment, error)
}

// gcsStager is the narrow slice of gcp.BucketService this package needs to
// stage a local file for Video Intelligence and clean up afterward.
type gcsStager interface {
	UploadFile(dbc dbctx.Context, category gcp.BucketCategory, key string, file io.Reader) error
	DeleteFile(dbc dbctx.Context, category gcp.BucketCategory, key string) error
	GCSURI(category gcp.BucketCategory, key string) (string, error)
}

type videoIntelligence struct {
	log    *logger.Logger
	video  gcp.Video
	bucket gcsStager
}

// New builds the GCP Video Intelligence-backed Transcriber. It stages each
// media file under the clip bucket's "transcribe-staging/" prefix and
// removes the staged object once annotation completes, regardless of
// outcome.
func New(log *logger.Logger, video gcp.Video, bucket gcsStager) (Transcriber, error) {
	if video == nil {
		return nil, fmt.Errorf("video intelligence client required")
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket service required")
	}
	return &videoIntelligence{log: log.With("service", "Transcriber"), video: video, bucket: bucket}, nil
}

func (t *videoIntelligence) Transcribe(ctx context.Context, mediaFile string) ([]types.Segment, error) {
	f, err := os.Open(mediaFile)
	if err != nil {
		return nil, &Error{MediaFile: mediaFile, Cause: err}
	}
	defer f.Close()

	key := fmt.Sprintf("transcribe-staging/%s%s", uuid.NewString(), filepath.Ext(mediaFile))
	dbc := dbctx.Context{Ctx: ctx}

	if err := t.bucket.UploadFile(dbc, gcp.BucketCategoryClip, key, f); err != nil {
		return nil, &Error{MediaFile: mediaFile, Cause: fmt.Errorf("stage upload: %w", err)}
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := t.bucket.DeleteFile(dbctx.Context{Ctx: cleanupCtx}, gcp.BucketCategoryClip, key); err != nil {
			t.log.Warn("failed to remove transcribe staging object", "key", key, "error", err)
		}
	}()

	gcsURI, err := t.bucket.GCSURI(gcp.BucketCategoryClip, key)
	if err != nil {
		return nil, &Error{MediaFile: mediaFile, Cause: fmt.Errorf("resolve staged uri: %w", err)}
	}

	result, err := t.video.AnnotateVideoGCS(ctx, gcsURI, gcp.VideoAIConfig{
		EnableSpeechTranscription: true,
	})
	if err != nil {
		return nil, &Error{MediaFile: mediaFile, Cause: err}
	}

	segments := append([]types.Segment{}, result.TranscriptSegments...)
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start() < segments[j].Start() })
	return segments, nil
}

// Quality reports whether a concatenated transcript is substantial enough to
// hand to the Multimodal Analyzer (spec §4.3's quality gate): at least 20
// characters and at least 3 distinct alphabetic tokens. Music-only captions
// and stray noise must not drive exercise detection.
func Quality(segments []types.Segment) bool {
	var text string
	for i, s := range segments {
		if i > 0 {
			text += " "
		}
		text += s.Text
	}
	return quality(text)
}

func quality(text string) bool {
	if len(text) < 20 {
		return false
	}
	tokens := map[string]struct{}{}
	var cur []rune
	flush := func() {
		if len(cur) == 0 {
			return
		}
		tokens[string(cur)] = struct{}{}
		cur = cur[:0]
	}
	for _, r := range text {
		if isAlpha(r) {
			cur = append(cur, toLower(r))
		} else {
			flush()
		}
	}
	flush()
	return len(tokens) >= 3
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// Concat joins segment text in order, for callers that need the flattened
// transcript (the Analyzer prompt, the quality gate).
func Concat(segments []types.Segment) string {
	var out string
	for i, s := range segments {
		if i > 0 {
			out += "\n"
		}
		out += s.Text
	}
	return out
}
