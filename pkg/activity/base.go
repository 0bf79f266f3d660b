// Package activity holds the plumbing shared by Temporal activities: workflow
// metadata lookup, best-effort event emission, heartbeats and logging that
// degrade to no-ops when called outside an activity context.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-llmware/pkg/events"
)

// WorkflowContext identifies the activity execution.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// IdempotencyKey is stable across attempts of the same activity.
func (w WorkflowContext) IdempotencyKey(operation string) string {
	return w.WorkflowID + "/" + w.RunID + "/" + w.ActivityID + "/" + operation
}

// BaseActivities carries the event sink shared by activity structs.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities returns a BaseActivities emitting to sink. A nil sink
// disables emission.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext reads execution metadata from ctx. Outside an activity
// (direct calls in tests) activity.GetInfo panics; synthetic IDs are
// returned instead.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	var wfCtx WorkflowContext
	func() {
		defer func() {
			if recover() != nil {
				wfCtx = WorkflowContext{
					WorkflowID: "local",
					RunID:      "local-" + uuid.NewString()[:8],
					ActivityID: "local",
					Attempt:    1,
				}
			}
		}()
		info := activity.GetInfo(ctx)
		wfCtx = WorkflowContext{
			WorkflowID: info.WorkflowExecution.ID,
			RunID:      info.WorkflowExecution.RunID,
			ActivityID: info.ActivityID,
			Attempt:    info.Attempt,
		}
	}()
	return wfCtx
}

// EmitEventSafe appends envelope, retrying once after a short delay. Failures
// are logged, never returned.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, envelope events.Envelope) {
	if b.eventSink == nil {
		return
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, "event emission cancelled", "event_type", envelope.Type)
				return
			}
		}
		if lastErr = b.eventSink.Append(ctx, envelope); lastErr == nil {
			SafeLog(ctx, "event emitted",
				"event_type", envelope.Type,
				"idempotency_key", envelope.IdempotencyKey)
			return
		}
	}
	SafeLogError(ctx, "event emission failed",
		"event_type", envelope.Type,
		"attempts", maxAttempts,
		"error", lastErr)
}

// RecordHeartbeat records progress when ctx belongs to an activity.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info through the activity logger, or not at all outside an
// activity.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat is activity.RecordHeartbeat that tolerates non-activity
// contexts.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
