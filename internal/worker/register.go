// Package worker wires the provider activities into a Temporal worker.
package worker

import (
	sdkactivity "go.temporal.io/sdk/activity"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-llmware/internal/activity"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	baseactivity "github.com/ahrav/go-llmware/pkg/activity"
	"github.com/ahrav/go-llmware/pkg/events"
)

// RegisterAll registers the Generate and StreamText activities backed by
// provider under their exported names. Call it once, before the worker
// starts. A nil sink disables activity events.
func RegisterAll(r sdkworker.ActivityRegistry, provider transport.Provider, sink events.EventSink) {
	acts := activity.NewActivities(baseactivity.NewBaseActivities(sink), provider)

	r.RegisterActivityWithOptions(acts.Generate, sdkactivity.RegisterOptions{Name: activity.GenerateActivity})
	r.RegisterActivityWithOptions(acts.StreamText, sdkactivity.RegisterOptions{Name: activity.StreamTextActivity})
}
