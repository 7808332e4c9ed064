// Package reconcile implements the reconciliation sweep (spec.md §9,
// invariant 1): finds clip files with no referencing Exercise row and
// vector entries whose database_id no longer resolves, and deletes them.
// Grounded in original_source/app/utils/cleanup_utils.py's
// find_orphaned_files / cleanup_orphaned_files preview-then-confirm shape.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/logger"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// scrollPageSize bounds how many vector entries ReconcileVectors pages
// through per Scroll call.
const scrollPageSize = 200

// ClipsSummary reports what ReconcileClips found and (unless dryRun) deleted.
type ClipsSummary struct {
	ScannedFiles int
	Orphaned     []string
	Deleted      []string
}

// ReconcileClips lists every file under <contentRoot>/clips, diffs it
// against every clip_path the Exercise Store currently references, and
// deletes files with no referencing row. With dryRun it reports what it
// would delete without touching the filesystem.
func ReconcileClips(ctx context.Context, log *logger.Logger, exercises exerciserepo.ExerciseRepo, contentRoot string, dryRun bool) (ClipsSummary, error) {
	log = log.With("sweep", "ReconcileClips")
	dbc := dbctx.Context{Ctx: ctx}

	paths, err := exercises.AllClipPaths(dbc)
	if err != nil {
		return ClipsSummary{}, fmt.Errorf("list referenced clip paths: %w", err)
	}
	referenced := make(map[string]bool, len(paths))
	for _, p := range paths {
		referenced[p] = true
	}

	clipsDir := filepath.Join(contentRoot, "clips")
	entries, err := os.ReadDir(clipsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return ClipsSummary{}, nil
		}
		return ClipsSummary{}, fmt.Errorf("read clips dir: %w", err)
	}

	var summary ClipsSummary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(clipsDir, e.Name())
		summary.ScannedFiles++
		if referenced[full] {
			continue
		}
		summary.Orphaned = append(summary.Orphaned, full)
		if dryRun {
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to delete orphaned clip", "path", full, "error", err)
			continue
		}
		log.Info("deleted orphaned clip", "path", full)
		summary.Deleted = append(summary.Deleted, full)
	}
	return summary, nil
}

// VectorsSummary reports what ReconcileVectors found and (unless dryRun)
// deleted.
type VectorsSummary struct {
	ScannedEntries int
	Orphaned       []string
	Deleted        []string
}

// ReconcileVectors pages through every entry in the Vector Store and
// deletes any whose payload database_id does not resolve to a live
// Exercise row. With dryRun it reports what it would delete without
// calling store.Delete.
func ReconcileVectors(ctx context.Context, log *logger.Logger, store vector.Store, exercises exerciserepo.ExerciseRepo, dryRun bool) (VectorsSummary, error) {
	log = log.With("sweep", "ReconcileVectors")
	dbc := dbctx.Context{Ctx: ctx}

	var summary VectorsSummary
	cursor := ""
	for {
		hits, next, err := store.Scroll(ctx, cursor, scrollPageSize)
		if err != nil {
			return summary, fmt.Errorf("scroll vector store: %w", err)
		}
		for _, h := range hits {
			summary.ScannedEntries++
			orphan, err := isOrphanVector(dbc, exercises, h)
			if err != nil {
				return summary, err
			}
			if !orphan {
				continue
			}
			summary.Orphaned = append(summary.Orphaned, h.VectorID)
			if dryRun {
				continue
			}
			if err := store.Delete(ctx, []string{h.VectorID}); err != nil {
				log.Warn("failed to delete orphaned vector entry", "vector_id", h.VectorID, "error", err)
				continue
			}
			log.Info("deleted orphaned vector entry", "vector_id", h.VectorID)
			summary.Deleted = append(summary.Deleted, h.VectorID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return summary, nil
}

func isOrphanVector(dbc dbctx.Context, exercises exerciserepo.ExerciseRepo, h vector.Hit) (bool, error) {
	rawID, _ := h.Payload["database_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return true, nil
	}
	row, err := exercises.Get(dbc, id)
	if err != nil {
		return false, fmt.Errorf("look up exercise %s: %w", id, err)
	}
	return row == nil, nil
}
