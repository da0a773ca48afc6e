package main

import (
	"context"

	"github.com/spf13/cobra"

	"manga-tracker/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run checks on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, cancel := app.GracefulShutdown(e.logger)
		defer cancel()

		orch := e.orchestrator()
		scheduler := app.NewScheduler(e.cfg.Scheduler, func(ctx context.Context) error {
			_, err := orch.RunOnce(ctx, false, nil)
			return err
		}, e.logger)

		return scheduler.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
