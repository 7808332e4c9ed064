// Package worker implements the bounded worker pool (spec.md §5): a fixed
// number of long-running loops that poll the Job Ledger for the next
// pending job, drive the Pipeline Orchestrator on it, and record the
// terminal result. Uses golang.org/x/sync/errgroup rather than raw
// goroutines so the pool's lifetime and first error are both observable
// from one Wait call.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	jobrepo "github.com/moveset-labs/clipcore/internal/data/repos/jobs"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/ctxutil"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

// Runner is the narrow capability the pool needs from the Pipeline
// Orchestrator. *orchestrator.Orchestrator satisfies it directly; tests
// substitute a fake to drive job-aggregation behavior without a real
// download/materialize/embed pipeline behind it.
type Runner interface {
	Run(ctx context.Context, url string, jobID string) (*types.DoneResult, error)
}

// Pool drives Concurrency long-running loops, each claiming and running one
// Job Ledger entry at a time through the Orchestrator. Concurrency is the
// pool's bound: spec.md §5's MAX_CONCURRENT_REQUESTS.
type Pool struct {
	log          *logger.Logger
	jobs         jobrepo.JobRepo
	orch         Runner
	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration
}

func New(log *logger.Logger, jobs jobrepo.JobRepo, orch Runner, concurrency int, jobTimeout time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		log:          log.With("service", "WorkerPool"),
		jobs:         jobs,
		orch:         orch,
		concurrency:  concurrency,
		pollInterval: time.Second,
		jobTimeout:   jobTimeout,
	}
}

// Run starts Concurrency poll loops and blocks until ctx is cancelled or one
// loop returns a non-nil error, at which point every other loop is also
// stopped and the first error is returned.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("starting worker pool", "concurrency", p.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	log := p.log.With("worker_id", workerID)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker loop stopped")
			return
		case <-ticker.C:
			job, err := p.jobs.ClaimNextPending(dbctx.Context{Ctx: ctx})
			if err != nil {
				log.Warn("claim next pending job failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			p.runJob(ctx, log, job)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, log *logger.Logger, job *types.Job) {
	log = log.With("job_id", job.JobID, "url", job.URL)

	jobCtx := ctxutil.WithTraceData(ctx, &ctxutil.TraceData{TraceID: job.JobID})
	log = log.WithTraceContext(jobCtx)

	var cancel context.CancelFunc
	if p.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, p.jobTimeout)
		defer cancel()
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("orchestrator run panicked", "panic", r)
				p.finish(ctx, job.JobID, types.JobFailed, types.FailedResult{
					ErrorKind: string(pipeerr.KindInternal),
					Message:   "panic during pipeline run",
				})
			}
		}()

		result, err := p.orch.Run(jobCtx, job.URL, job.JobID)
		if err != nil {
			log.Warn("orchestrator run failed", "error", err)
			p.finish(ctx, job.JobID, types.JobFailed, types.FailedResult{
				ErrorKind: string(pipeerr.KindOf(err)),
				Message:   err.Error(),
			})
			return
		}
		if failed, allFailed := allExercisesFailed(result.Exercises); allFailed {
			errorKind := failed.ErrorKind
			if errorKind == "" {
				errorKind = string(pipeerr.KindInternal)
			}
			log.Warn("every exercise in the run failed, failing the job", "error_kind", errorKind, "error", failed.Error)
			p.finish(ctx, job.JobID, types.JobFailed, types.FailedResult{
				ErrorKind: errorKind,
				Message:   failed.Error,
			})
			return
		}
		log.Info("orchestrator run finished", "exercises_created", len(result.Exercises))
		p.finish(ctx, job.JobID, types.JobDone, result)
	}()
}

// allExercisesFailed reports whether every item in a non-empty result
// failed, per spec.md §7: an item's failure does not fail the job unless
// all items fail. Returns the first failed item so its ErrorKind/Error can
// be promoted to the job's FailedResult.
func allExercisesFailed(items []types.CreatedExerciseResult) (types.CreatedExerciseResult, bool) {
	if len(items) == 0 {
		return types.CreatedExerciseResult{}, false
	}
	for _, item := range items {
		if item.Status != "failed" {
			return types.CreatedExerciseResult{}, false
		}
	}
	return items[0], true
}

func (p *Pool) finish(ctx context.Context, jobID string, state types.JobState, result any) {
	if err := p.jobs.Finish(dbctx.Context{Ctx: ctx}, jobID, state, result); err != nil {
		p.log.Error("failed to record job terminal state", "job_id", jobID, "state", state, "error", err)
	}
}
