package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/events"
)

// Run connects to the Temporal frontend in cfg, serves the provider
// activities on cfg.TaskQueue and blocks until ctx is done.
func Run(
	ctx context.Context,
	cfg configuration.WorkerConfig,
	provider transport.Provider,
	sink events.EventSink,
	logger *slog.Logger,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal at %s: %w", cfg.HostPort, err)
	}
	defer c.Close()

	w := sdkworker.New(c, cfg.TaskQueue, sdkworker.Options{})
	RegisterAll(w, provider, sink)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	logger.InfoContext(ctx, "worker started",
		"host_port", cfg.HostPort,
		"namespace", cfg.Namespace,
		"task_queue", cfg.TaskQueue,
		"provider", provider.Name())

	<-ctx.Done()
	w.Stop()
	logger.Info("worker stopped", "task_queue", cfg.TaskQueue)
	return nil
}
