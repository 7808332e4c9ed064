// Package orchestrator implements the Pipeline Orchestrator (spec §4.11):
// the state machine that drives one ingestion URL from normalization
// through persisted exercises, including the four-step per-exercise
// transaction and its rollback semantics, and the reverse cascade delete.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/moveset-labs/clipcore/internal/analyzer"
	types "github.com/moveset-labs/clipcore/internal/domain"
	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	"github.com/moveset-labs/clipcore/internal/downloader"
	"github.com/moveset-labs/clipcore/internal/keyframe"
	"github.com/moveset-labs/clipcore/internal/materializer"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
	"github.com/moveset-labs/clipcore/internal/segment"
	"github.com/moveset-labs/clipcore/internal/transcriber"
	"github.com/moveset-labs/clipcore/internal/urlcanon"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// Embedder is the narrow capability the Orchestrator needs to turn an
// exercise's text into a dense vector. openai.Client satisfies it directly.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// RetryPolicy bounds the attempts the Orchestrator makes on one external
// capability call before giving up on that call, per spec.md §5's "bounded
// exponential backoff with a small cap (e.g., 3 attempts)".
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	JitterFrac  float64
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MinBackoff: time.Second, MaxBackoff: 30 * time.Second, JitterFrac: 0.2}
}

type Orchestrator struct {
	log *logger.Logger

	downloader   downloader.Downloader
	transcriber  transcriber.Transcriber
	keyframes    keyframe.Extractor
	analyzer     analyzer.Analyzer
	embedder     Embedder
	materializer materializer.Materializer
	exercises    exerciserepo.ExerciseRepo
	vectors      vector.Store

	contentRoot string
	tempRoot    string
	retry       RetryPolicy
}

func New(
	log *logger.Logger,
	dl downloader.Downloader,
	tr transcriber.Transcriber,
	kf keyframe.Extractor,
	az analyzer.Analyzer,
	emb Embedder,
	mz materializer.Materializer,
	exercises exerciserepo.ExerciseRepo,
	vectors vector.Store,
	contentRoot, tempRoot string,
) *Orchestrator {
	return &Orchestrator{
		log:          log.With("service", "Orchestrator"),
		downloader:   dl,
		transcriber:  tr,
		keyframes:    kf,
		analyzer:     az,
		embedder:     emb,
		materializer: mz,
		exercises:    exercises,
		vectors:      vectors,
		contentRoot:  contentRoot,
		tempRoot:     tempRoot,
		retry:        defaultRetryPolicy(),
	}
}

// SetRetryPolicy overrides the bounded-retry policy external capability
// calls run under. Tests use this to collapse backoff to near-zero.
func (o *Orchestrator) SetRetryPolicy(p RetryPolicy) {
	o.retry = p
}

// Run drives one ingestion URL end to end and returns the Job Ledger's
// DoneResult payload. jobID scopes this run's temp directory; an empty
// jobID gets a generated one.
func (o *Orchestrator) Run(ctx context.Context, url string, jobID string) (*types.DoneResult, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := o.log.With("job_id", jobID, "url", url)

	normalizedURL, err := urlcanon.Normalize(url)
	if err != nil {
		return nil, pipeerr.New(pipeerr.KindInputInvalid, "normalize url", err)
	}
	if urlcanon.Classify(url) == urlcanon.ClassUnsupported {
		return nil, pipeerr.New(pipeerr.KindInputInvalid, "unsupported url", nil)
	}

	pipelineDir := filepath.Join(o.tempRoot, "pipeline_"+jobID)
	if err := os.MkdirAll(pipelineDir, 0o755); err != nil {
		return nil, pipeerr.New(pipeerr.KindInternal, "create pipeline temp dir", err)
	}
	defer func() {
		if err := os.RemoveAll(pipelineDir); err != nil {
			log.Warn("failed to remove pipeline temp dir", "dir", pipelineDir, "error", err)
		}
	}()

	dlResult, err := o.download(ctx, url)
	if err != nil {
		return nil, pipeerr.New(pipeerr.KindDownloadFailed, "download", err)
	}

	result := &types.DoneResult{Exercises: []types.CreatedExerciseResult{}}
	for i, mediaFile := range dlResult.MediaFiles {
		if ctx.Err() != nil {
			return result, pipeerr.New(pipeerr.KindCancelled, "cancelled between media items", ctx.Err())
		}
		carouselIndex := i + 1
		actx := analyzer.Context{
			Platform:         string(urlcanon.PlatformOf(url)),
			CarouselPosition: carouselIndex,
			CarouselCount:    len(dlResult.MediaFiles),
		}
		items := o.processMediaFile(ctx, log, mediaFile, pipelineDir, url, normalizedURL, carouselIndex, actx)
		result.Exercises = append(result.Exercises, items...)
	}
	return result, nil
}

// processMediaFile runs transcription, keyframe extraction, analysis, and
// normalization for one media file, then persists each surviving candidate.
// A failure at any stage before persistence degrades to an empty result for
// that stage rather than aborting the sibling media files in the carousel.
func (o *Orchestrator) processMediaFile(
	ctx context.Context,
	log *logger.Logger,
	mediaFile string,
	pipelineDir string,
	sourceURL, normalizedURL string,
	carouselIndex int,
	actx analyzer.Context,
) []types.CreatedExerciseResult {
	segments, err := o.transcribe(ctx, mediaFile)
	if err != nil {
		log.Warn("transcription failed, continuing with empty transcript", "media_file", mediaFile, "error", err)
		segments = nil
	}
	transcriptText := ""
	if transcriber.Quality(segments) {
		transcriptText = transcriber.Concat(segments)
	}

	framesDir := filepath.Join(pipelineDir, fmt.Sprintf("frames_%d", carouselIndex))
	frames, err := o.extractFrames(ctx, mediaFile, framesDir)
	if err != nil {
		return []types.CreatedExerciseResult{{Status: "failed", ErrorKind: string(pipeerr.KindDecodeFailed),
			Error:  pipeerr.New(pipeerr.KindDecodeFailed, "keyframe extraction", err).Error()}}
	}

	candidates, err := o.analyze(ctx, frames, transcriptText, actx)
	if err != nil {
		log.Warn("analyzer failed, falling back to keyword detection", "media_file", mediaFile, "error", err)
		candidates = analyzer.Keyword(segments)
	}

	videoDuration, err := materializer.Duration(ctx, mediaFile)
	if err != nil {
		return []types.CreatedExerciseResult{{Status: "failed", ErrorKind: string(pipeerr.KindDecodeFailed),
			Error:  pipeerr.New(pipeerr.KindDecodeFailed, "probe media duration", err).Error()}}
	}

	normalized := segment.Normalize(toSegmentCandidates(candidates), videoDuration)

	out := make([]types.CreatedExerciseResult, 0, len(normalized))
	for _, c := range normalized {
		out = append(out, o.persistExercise(ctx, log, mediaFile, sourceURL, normalizedURL, carouselIndex, c))
	}
	return out
}

// persistExercise runs the four-step per-exercise transaction (spec §4.11)
// with fingerprint-based idempotency and stepwise rollback on failure.
func (o *Orchestrator) persistExercise(
	ctx context.Context,
	log *logger.Logger,
	mediaFile, sourceURL, normalizedURL string,
	carouselIndex int,
	c segment.Candidate,
) types.CreatedExerciseResult {
	dbc := dbctx.Context{Ctx: ctx}
	fp := types.Fingerprint{NormalizedURL: normalizedURL, CarouselIndex: carouselIndex, Name: c.Name}

	existing, err := o.exercises.FindByFingerprint(dbc, fp)
	if err != nil {
		return types.CreatedExerciseResult{Name: c.Name, Status: "failed", ErrorKind: string(pipeerr.KindOf(err)), Error: err.Error()}
	}
	if existing != nil {
		return types.CreatedExerciseResult{ID: existing.ID.String(), Name: c.Name, Status: "duplicate_skipped"}
	}

	ext := filepath.Ext(mediaFile)
	if ext == "" {
		ext = ".mp4"
	}
	clipPath := filepath.Join(o.contentRoot, "clips", materializer.Filename(c.Name, normalizedURL, c.Start, ext))

	// Step 1: materialize the clip file.
	if err := o.materialize(ctx, mediaFile, c.Start, c.End, clipPath); err != nil {
		return types.CreatedExerciseResult{Name: c.Name, StartTime: c.Start, EndTime: c.End, Status: "failed",
			ErrorKind: string(pipeerr.KindMaterializeFailed),
			Error:     pipeerr.New(pipeerr.KindMaterializeFailed, "materialize clip", err).Error()}
	}

	// Step 2: insert the Exercise row with vector_id nil.
	ex := &types.Exercise{
		SourceURL: sourceURL, NormalizedURL: normalizedURL, CarouselIndex: carouselIndex,
		Name: c.Name, ClipPath: clipPath, StartTime: c.Start, EndTime: c.End,
		HowTo: c.HowTo, Benefits: c.Benefits, Counteracts: c.Counteracts,
		FitnessLevel: c.FitnessLevel, Intensity: c.Intensity, RoundsReps: c.RoundsReps,
	}
	inserted, err := o.exercises.Insert(dbc, ex)
	if err != nil {
		o.removeClip(log, clipPath)
		if pipeerr.KindOf(err) == pipeerr.KindDuplicate {
			return types.CreatedExerciseResult{Name: c.Name, StartTime: c.Start, EndTime: c.End, Status: "duplicate"}
		}
		return types.CreatedExerciseResult{Name: c.Name, StartTime: c.Start, EndTime: c.End, Status: "failed",
			ErrorKind: string(pipeerr.KindOf(err)), Error: err.Error()}
	}

	// Step 3: embed and upsert the vector entry.
	vectorID := uuid.NewString()
	if err := o.embedAndUpsert(ctx, vectorID, inserted); err != nil {
		if _, derr := o.exercises.Delete(dbc, inserted.ID); derr != nil {
			log.Warn("rollback: failed to delete exercise row", "id", inserted.ID, "error", derr)
		}
		o.removeClip(log, clipPath)
		return types.CreatedExerciseResult{ID: inserted.ID.String(), Name: c.Name, StartTime: c.Start, EndTime: c.End,
			Status: "failed", ErrorKind: string(pipeerr.KindAnalyzeFailed),
			Error:  pipeerr.New(pipeerr.KindAnalyzeFailed, "embed and upsert vector", err).Error()}
	}

	// Step 4: point the Exercise row at its vector.
	vectorUUID, err := uuid.Parse(vectorID)
	if err != nil {
		vectorUUID = uuid.New()
	}
	if err := o.exercises.SetVectorID(dbc, inserted.ID, vectorUUID); err != nil {
		if derr := o.vectors.Delete(ctx, []string{vectorID}); derr != nil {
			log.Warn("rollback: failed to delete vector entry", "vector_id", vectorID, "error", derr)
		}
		if _, derr := o.exercises.Delete(dbc, inserted.ID); derr != nil {
			log.Warn("rollback: failed to delete exercise row", "id", inserted.ID, "error", derr)
		}
		o.removeClip(log, clipPath)
		return types.CreatedExerciseResult{ID: inserted.ID.String(), Name: c.Name, StartTime: c.Start, EndTime: c.End,
			Status: "failed", ErrorKind: string(pipeerr.KindPersistenceFailed),
			Error:  pipeerr.New(pipeerr.KindPersistenceFailed, "link vector to exercise", err).Error()}
	}

	return types.CreatedExerciseResult{ID: inserted.ID.String(), Name: c.Name, ClipPath: clipPath,
		StartTime: c.Start, EndTime: c.End, Status: "created"}
}

func (o *Orchestrator) embedAndUpsert(ctx context.Context, vectorID string, ex *types.Exercise) error {
	text := exerciseEmbeddingText(ex)
	embeddings, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("embedder returned no vectors")
	}
	payload := map[string]any{
		"database_id":   ex.ID.String(),
		"name":          ex.Name,
		"how_to":        ex.HowTo,
		"benefits":      ex.Benefits,
		"counteracts":   ex.Counteracts,
		"fitness_level": ex.FitnessLevel,
		"intensity":     ex.Intensity,
	}
	return o.vectors.Upsert(ctx, []vector.Vector{{ID: vectorID, Values: embeddings[0], Metadata: payload}})
}

func exerciseEmbeddingText(ex *types.Exercise) string {
	return fmt.Sprintf("%s. %s. Benefits: %s. Counteracts: %s.", ex.Name, ex.HowTo, ex.Benefits, ex.Counteracts)
}

// CascadeDelete reverses persistExercise: the row is the source of truth,
// so deletion is acknowledged only once it is gone. The vector entry and
// clip file are deleted best-effort; leftovers are caught by the
// reconciliation sweep.
func (o *Orchestrator) CascadeDelete(ctx context.Context, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	ex, err := o.exercises.Get(dbc, id)
	if err != nil {
		return err
	}
	if ex == nil {
		return nil
	}
	if ex.VectorID != nil {
		if err := o.vectors.Delete(ctx, []string{ex.VectorID.String()}); err != nil {
			o.log.Warn("cascade delete: best-effort vector delete failed", "id", id, "error", err)
		}
	}
	o.removeClip(o.log, ex.ClipPath)
	if _, err := o.exercises.Delete(dbc, id); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) removeClip(log *logger.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove clip file", "path", path, "error", err)
	}
}

func toSegmentCandidates(in []analyzer.Candidate) []segment.Candidate {
	out := make([]segment.Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, segment.Candidate{
			Name: c.Name, Start: c.Start, End: c.End, HowTo: c.HowTo, Benefits: c.Benefits,
			Counteracts: c.Counteracts, FitnessLevel: c.FitnessLevel, Intensity: c.Intensity,
			RoundsReps: c.RoundsReps, Confidence: c.Confidence,
		})
	}
	return out
}

// -------------------- retrying external calls --------------------

func (o *Orchestrator) download(ctx context.Context, url string) (*downloader.Result, error) {
	var out *downloader.Result
	err := withRetry(ctx, o.retry, func() error {
		r, err := o.downloader.Download(ctx, url)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (o *Orchestrator) transcribe(ctx context.Context, mediaFile string) ([]types.Segment, error) {
	var out []types.Segment
	err := withRetry(ctx, o.retry, func() error {
		segs, err := o.transcriber.Transcribe(ctx, mediaFile)
		if err != nil {
			return err
		}
		out = segs
		return nil
	})
	return out, err
}

func (o *Orchestrator) extractFrames(ctx context.Context, mediaFile, outDir string) ([]keyframe.Frame, error) {
	var out []keyframe.Frame
	err := withRetry(ctx, o.retry, func() error {
		frames, err := o.keyframes.Extract(ctx, mediaFile, outDir)
		if err != nil {
			return err
		}
		out = frames
		return nil
	})
	return out, err
}

func (o *Orchestrator) analyze(ctx context.Context, frames []keyframe.Frame, transcript string, actx analyzer.Context) ([]analyzer.Candidate, error) {
	var out []analyzer.Candidate
	err := withRetry(ctx, o.retry, func() error {
		candidates, err := o.analyzer.Analyze(ctx, frames, transcript, actx)
		if err != nil {
			return err
		}
		out = candidates
		return nil
	})
	return out, err
}

func (o *Orchestrator) materialize(ctx context.Context, sourceMedia string, start, end float64, targetPath string) error {
	return withRetry(ctx, o.retry, func() error {
		return o.materializer.Materialize(ctx, sourceMedia, start, end, targetPath)
	})
}

// withRetry runs fn up to policy.MaxAttempts times with jittered exponential
// backoff between attempts. It does not retry context cancellation.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(computeBackoff(policy, attempt)):
		}
	}
	return lastErr
}

func computeBackoff(p RetryPolicy, attempt int) time.Duration {
	minB, maxB, jitter := p.MinBackoff, p.MaxBackoff, p.JitterFrac
	if minB <= 0 {
		minB = time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if jitter <= 0 {
		jitter = 0.2
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempt-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * jitter
	low, high := float64(d)-delta, float64(d)+delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
