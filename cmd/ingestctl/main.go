// Command ingestctl drives one-shot ingestion and reconciliation from the
// command line, for operators who want to run a single job or sweep
// without standing up the ingestd daemon. See spec.md §4.11, §9.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/moveset-labs/clipcore/internal/app"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/platform/pipeerr"
)

func main() {
	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "One-shot ingestion and reconciliation commands",
	}

	var dryRun bool
	reconcileCmd := &cobra.Command{
		Use:   "reconcile [clips|vectors]",
		Short: "Sweep for and remove orphaned clip files or vector entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), args[0], dryRun)
		},
	}
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", true, "report what would be removed without deleting anything")

	ingestCmd := &cobra.Command{
		Use:   "ingest <url>",
		Short: "Run one ingestion job synchronously against a source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args[0])
		},
	}

	root.AddCommand(reconcileCmd, ingestCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, url string) error {
	a, err := app.Build()
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Log.Sync()

	jobID := uuid.NewString()
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := a.Jobs.Create(dbc, jobID, url); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if err := a.Jobs.Start(dbc, jobID); err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	result, err := a.Orchestrator.Run(ctx, url, jobID)
	if err != nil {
		a.Log.Error("ingestion failed", "job_id", jobID, "url", url, "error", err)
		failed := types.FailedResult{ErrorKind: string(pipeerr.KindOf(err)), Message: err.Error()}
		if finishErr := a.Jobs.Finish(dbc, jobID, types.JobFailed, failed); finishErr != nil {
			a.Log.Error("failed to record job failure", "job_id", jobID, "error", finishErr)
		}
		return err
	}

	if err := a.Jobs.Finish(dbc, jobID, types.JobDone, result); err != nil {
		return fmt.Errorf("record job result: %w", err)
	}
	fmt.Printf("job %s done: %d exercise(s) created\n", jobID, len(result.Exercises))
	return nil
}

func runReconcile(ctx context.Context, target string, dryRun bool) error {
	a, err := app.Build()
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Log.Sync()

	switch target {
	case "clips":
		summary, err := a.ReconcileClips(ctx, dryRun)
		if err != nil {
			return fmt.Errorf("reconcile clips: %w", err)
		}
		fmt.Printf("scanned %d file(s), %d orphaned, %d deleted (dry_run=%v)\n",
			summary.ScannedFiles, len(summary.Orphaned), len(summary.Deleted), dryRun)
	case "vectors":
		summary, err := a.ReconcileVectors(ctx, dryRun)
		if err != nil {
			return fmt.Errorf("reconcile vectors: %w", err)
		}
		fmt.Printf("scanned %d vector entries, %d orphaned, %d deleted (dry_run=%v)\n",
			summary.ScannedEntries, len(summary.Orphaned), len(summary.Deleted), dryRun)
	default:
		return fmt.Errorf("unknown reconcile target %q, want clips or vectors", target)
	}
	return nil
}
