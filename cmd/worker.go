package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"demobook/cron"

	"github.com/spf13/cobra"
)

func newWorker(c *container) *cron.ResumeWorker {
	return cron.NewResumeWorker(c.QueueRedis, c.Service, c.Resumer, cron.WorkerConfig{
		MaxRuns:     c.cfg.MaxRuns,
		ResumeDelay: c.cfg.ResumeDelay,
		RunLease:    c.cfg.RunLease,
	}, c.logger)
}

func newWorkerCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the resume worker and the stuck-booking sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c, err := bootstrap(ctx, state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			// asynq's server traps SIGINT and SIGTERM itself and returns once drained.
			return newWorker(c).Run()
		},
	}
}
