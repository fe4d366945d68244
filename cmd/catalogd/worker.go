package main

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
)

func newWorkerCommand(root *rootOptions) *cobra.Command {
	var scheduler bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run job workers without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			var wg sync.WaitGroup
			if scheduler {
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.svc.StartScheduler(ctx, a.schedulerConfig())
				}()
			}

			a.pool().Run(ctx)
			wg.Wait()
			slog.Info("worker stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&scheduler, "scheduler", false, "also run token refresh, lease expiry and audit purge")

	return cmd
}
