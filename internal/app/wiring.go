// Package app wires the concrete capability implementations behind the
// Pipeline Orchestrator and worker pool, using one construction order so
// both cmd entrypoints (ingestd, ingestctl) share it instead of
// duplicating it.
package app

import (
	"context"
	"fmt"

	"github.com/moveset-labs/clipcore/internal/analyzer"
	"github.com/moveset-labs/clipcore/internal/config"
	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	jobrepo "github.com/moveset-labs/clipcore/internal/data/repos/jobs"
	"github.com/moveset-labs/clipcore/internal/downloader"
	"github.com/moveset-labs/clipcore/internal/keyframe"
	"github.com/moveset-labs/clipcore/internal/materializer"
	"github.com/moveset-labs/clipcore/internal/orchestrator"
	"github.com/moveset-labs/clipcore/internal/platform/gcp"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/platform/openai"
	"github.com/moveset-labs/clipcore/internal/platform/postgres"
	"github.com/moveset-labs/clipcore/internal/reconcile"
	"github.com/moveset-labs/clipcore/internal/store/vector"
	"github.com/moveset-labs/clipcore/internal/store/vectorprovider"
	"github.com/moveset-labs/clipcore/internal/transcriber"
	"github.com/moveset-labs/clipcore/internal/worker"
)

// App holds every long-lived dependency a cmd entrypoint needs. Fields are
// exported so ingestd and ingestctl can reach into whichever slice of the
// graph they need without an extra accessor per dependency.
type App struct {
	Log    *logger.Logger
	Config *config.Config

	DB       *postgres.Service
	Jobs     jobrepo.JobRepo
	Exercise exerciserepo.ExerciseRepo
	Vectors  vector.Store

	Orchestrator *orchestrator.Orchestrator
}

// Build loads config, connects Postgres, migrates, resolves the vector
// store, constructs every pipeline capability, and assembles the
// Orchestrator. Callers close nothing explicitly; process exit reclaims
// the DB connection pool.
func Build() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := postgres.New(log, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	vectors, err := vectorprovider.ResolveFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("resolve vector store: %w", err)
	}

	az, err := buildAnalyzer(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}
	emb, err := buildEmbedder(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	video, err := gcp.NewVideo(log)
	if err != nil {
		return nil, fmt.Errorf("init video intelligence client: %w", err)
	}
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return nil, fmt.Errorf("init bucket service: %w", err)
	}
	tr, err := transcriber.New(log, video, bucket)
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}

	dl := downloader.NewManual(log)
	kf := keyframe.New(log)
	mz := materializer.New(log)

	exercises := exerciserepo.NewExerciseRepo(db.DB(), log)
	jobs := jobrepo.NewJobRepo(db.DB(), log)

	orch := orchestrator.New(log, dl, tr, kf, az, emb, mz, exercises, vectors, cfg.ContentRoot, cfg.TempRoot)

	return &App{
		Log:          log,
		Config:       cfg,
		DB:           db,
		Jobs:         jobs,
		Exercise:     exercises,
		Vectors:      vectors,
		Orchestrator: orch,
	}, nil
}

func buildAnalyzer(log *logger.Logger, cfg *config.Config) (analyzer.Analyzer, error) {
	switch cfg.AIProvider {
	case config.AIProviderGemini:
		return analyzer.NewGemini(log, cfg.GeminiAPIKey, cfg.GeminiBackupKey, cfg.GeminiModel)
	default:
		client, err := openai.NewClient(log)
		if err != nil {
			return nil, err
		}
		return analyzer.NewOpenAI(log, client)
	}
}

func buildEmbedder(log *logger.Logger, cfg *config.Config) (orchestrator.Embedder, error) {
	return openai.NewClient(log)
}

// NewWorkerPool builds the bounded worker pool (spec.md §5) over this App's
// Job Ledger and Orchestrator, sized by Config.MaxConcurrentRequests.
func (a *App) NewWorkerPool() *worker.Pool {
	return worker.New(a.Log, a.Jobs, a.Orchestrator, a.Config.MaxConcurrentRequests, a.Config.RequestTimeout)
}

// ReconcileClips runs the orphan clip-file sweep (spec.md invariant 1)
// rooted at Config.ContentRoot.
func (a *App) ReconcileClips(ctx context.Context, dryRun bool) (reconcile.ClipsSummary, error) {
	return reconcile.ReconcileClips(ctx, a.Log, a.Exercise, a.Config.ContentRoot, dryRun)
}

// ReconcileVectors runs the orphan vector-entry sweep (spec.md invariant 1)
// against the resolved Vector Store.
func (a *App) ReconcileVectors(ctx context.Context, dryRun bool) (reconcile.VectorsSummary, error) {
	return reconcile.ReconcileVectors(ctx, a.Log, a.Vectors, a.Exercise, dryRun)
}
