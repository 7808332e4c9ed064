// Command ingestd runs the worker pool daemon: it polls the Job Ledger for
// pending jobs and drives each one through the Pipeline Orchestrator until
// terminated. See spec.md §5.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moveset-labs/clipcore/internal/app"
)

func main() {
	root := &cobra.Command{
		Use:   "ingestd",
		Short: "Run the ingestion worker pool daemon",
		RunE:  runDaemon,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := app.Build()
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Log.Sync()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool := a.NewWorkerPool()
	a.Log.Info("ingestd starting", "concurrency", a.Config.MaxConcurrentRequests)
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		a.Log.Error("worker pool exited with error", "error", err)
		return err
	}
	a.Log.Info("ingestd stopped")
	return nil
}
