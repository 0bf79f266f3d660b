// Package activity exposes the provider pipeline as Temporal activities.
package activity

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-llmware/internal/llm/transport"
	"github.com/ahrav/go-llmware/pkg/activity"
	"github.com/ahrav/go-llmware/pkg/events"
)

// Activity names as registered with the worker.
const (
	GenerateActivity   = "Generate"
	StreamTextActivity = "StreamText"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// GenerateInput is the payload for Generate and StreamText.
type GenerateInput struct {
	Prompt      string   `json:"prompt" validate:"required"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0"`
}

// Validate checks the struct tags.
func (in GenerateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func (in GenerateInput) config() *transport.Config {
	return &transport.Config{
		ModelName:   in.Model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}
}

// GenerateOutput is the result of Generate and StreamText. Fragments is zero
// for Generate.
type GenerateOutput struct {
	Text      string           `json:"text"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model,omitempty"`
	Fragments int              `json:"fragments,omitempty"`
	Usage     *transport.Usage `json:"usage,omitempty"`
}

// Completed is the payload of the llm.activity.completed event.
type Completed struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	ActivityID string `json:"activity_id"`
	Attempt    int32  `json:"attempt"`
	Activity   string `json:"activity"`
	GenerateOutput
}

// Activities runs prompts through a provider, normally the assembled
// pipeline.
type Activities struct {
	activity.BaseActivities
	provider transport.Provider
}

// NewActivities returns activities backed by provider.
func NewActivities(base activity.BaseActivities, provider transport.Provider) *Activities {
	return &Activities{BaseActivities: base, provider: provider}
}

// Generate performs one completion.
func (a *Activities) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	if err := in.Validate(); err != nil {
		return nil, nonRetryable(GenerateActivity, err, "invalid input")
	}

	resp, err := a.provider.Generate(ctx, in.Prompt, in.config())
	if err != nil {
		activity.SafeLogError(ctx, "generate failed", "provider", a.provider.Name(), "error", err)
		return nil, classify(GenerateActivity, err)
	}

	out := &GenerateOutput{
		Text:     resp.Text,
		Provider: a.provider.Name(),
		Model:    in.Model,
		Usage:    resp.Usage,
	}
	a.completed(ctx, GenerateActivity, out)
	return out, nil
}

// StreamText drains a stream into a single text, heartbeating with the
// fragment count after every fragment. A stream that breaks partway fails
// the activity; the partial text is not returned.
func (a *Activities) StreamText(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	if err := in.Validate(); err != nil {
		return nil, nonRetryable(StreamTextActivity, err, "invalid input")
	}

	stream, err := a.provider.Stream(ctx, in.Prompt, in.config())
	if err != nil {
		activity.SafeLogError(ctx, "stream failed to start", "provider", a.provider.Name(), "error", err)
		return nil, classify(StreamTextActivity, err)
	}
	defer stream.Close() //nolint:errcheck // nothing useful to do with a close error here

	var fragments []string
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			activity.SafeLogError(ctx, "stream failed",
				"provider", a.provider.Name(),
				"fragments", len(fragments),
				"error", err)
			return nil, classify(StreamTextActivity, err)
		}
		fragments = append(fragments, frag)
		a.RecordHeartbeat(ctx, len(fragments))
	}

	out := &GenerateOutput{
		Text:      transport.Text(fragments),
		Provider:  a.provider.Name(),
		Model:     in.Model,
		Fragments: len(fragments),
	}
	a.completed(ctx, StreamTextActivity, out)
	return out, nil
}

func (a *Activities) completed(ctx context.Context, name string, out *GenerateOutput) {
	wfCtx := a.GetWorkflowContext(ctx)
	env, err := events.NewEnvelope(events.TypeActivityDone, "activity", Completed{
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		ActivityID:     wfCtx.ActivityID,
		Attempt:        wfCtx.Attempt,
		Activity:       name,
		GenerateOutput: *out,
	})
	if err != nil {
		activity.SafeLogError(ctx, "event envelope failed", "error", err)
		return
	}
	env.IdempotencyKey = wfCtx.IdempotencyKey(name)
	a.EmitEventSafe(ctx, env)
}
