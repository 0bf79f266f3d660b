package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-llmware/internal/llm"
	"github.com/ahrav/go-llmware/internal/worker"
	"github.com/ahrav/go-llmware/pkg/events"
)

func newWorkerCmd(g *globals) *cobra.Command {
	var hostPort, namespace, taskQueue string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve the Generate and StreamText activities on a Temporal task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if hostPort != "" {
				cfg.Worker.HostPort = hostPort
			}
			if namespace != "" {
				cfg.Worker.Namespace = namespace
			}
			if taskQueue != "" {
				cfg.Worker.TaskQueue = taskQueue
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := g.logger(cfg)
			p, err := llm.NewProvider(ctx, cfg, llm.WithLogger(logger))
			if err != nil {
				return err
			}
			runErr := worker.Run(ctx, cfg.Worker, p, events.NewLogSink(logger, slog.LevelInfo), logger)
			return errors.Join(runErr, p.Close(context.WithoutCancel(ctx)))
		},
	}
	cmd.Flags().StringVar(&hostPort, "host-port", "", "Temporal frontend address")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Temporal namespace")
	cmd.Flags().StringVar(&taskQueue, "task-queue", "", "task queue to poll")
	return cmd
}
