package activity_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-llmware/internal/activity"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
	baseactivity "github.com/ahrav/go-llmware/pkg/activity"
	"github.com/ahrav/go-llmware/pkg/events"
)

// scriptedProvider answers Generate with resp or err and streams fragments
// followed by streamErr (io.EOF when nil).
type scriptedProvider struct {
	mu        sync.Mutex
	resp      *transport.Response
	err       error
	fragments []string
	streamErr error
	lastCfg   *transport.Config
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(_ context.Context, _ string, cfg *transport.Config) (*transport.Response, error) {
	s.mu.Lock()
	s.lastCfg = cfg
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *scriptedProvider) Stream(context.Context, string, *transport.Config) (transport.TokenStream, error) {
	if s.err != nil {
		return nil, s.err
	}
	i := 0
	return transport.NewFuncStream(func() (string, error) {
		if i < len(s.fragments) {
			i++
			return s.fragments[i-1], nil
		}
		if s.streamErr != nil {
			return "", s.streamErr
		}
		return "", io.EOF
	}, nil), nil
}

func newActivities(p transport.Provider) (*activity.Activities, *events.MemorySink) {
	sink := events.NewMemorySink()
	return activity.NewActivities(baseactivity.NewBaseActivities(sink), p), sink
}

func TestGenerate_InTestEnvironment(t *testing.T) {
	p := &scriptedProvider{resp: &transport.Response{
		Text:  "42",
		Usage: &transport.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
	}}
	acts, sink := newActivities(p)

	env := (&testsuite.WorkflowTestSuite{}).NewTestActivityEnvironment()
	env.RegisterActivity(acts.Generate)

	temp := 0.1
	val, err := env.ExecuteActivity(acts.Generate, activity.GenerateInput{
		Prompt: "What is 6*7?", Model: "gpt-4o", Temperature: &temp, MaxTokens: 8,
	})
	require.NoError(t, err)

	var out activity.GenerateOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "42", out.Text)
	assert.Equal(t, "scripted", out.Provider)
	require.NotNil(t, out.Usage)
	assert.Equal(t, int64(6), out.Usage.TotalTokens)

	require.NotNil(t, p.lastCfg)
	assert.Equal(t, "gpt-4o", p.lastCfg.ModelName)
	assert.Equal(t, 8, p.lastCfg.MaxTokens)

	done := sink.ByType(events.TypeActivityDone)
	require.Len(t, done, 1)
	var payload activity.Completed
	require.NoError(t, done[0].Decode(&payload))
	assert.Equal(t, activity.GenerateActivity, payload.Activity)
	assert.Equal(t, "42", payload.Text)
	assert.NotEmpty(t, done[0].IdempotencyKey)
}

func TestStreamText_InTestEnvironment(t *testing.T) {
	acts, sink := newActivities(&scriptedProvider{fragments: []string{"Hel", "lo", "!"}})

	env := (&testsuite.WorkflowTestSuite{}).NewTestActivityEnvironment()
	env.RegisterActivity(acts.StreamText)

	val, err := env.ExecuteActivity(acts.StreamText, activity.GenerateInput{Prompt: "greet"})
	require.NoError(t, err)

	var out activity.GenerateOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "Hello!", out.Text)
	assert.Equal(t, 3, out.Fragments)
	assert.Len(t, sink.ByType(events.TypeActivityDone), 1)
}

// TestActivities_ErrorMapping verifies provider failures keep their retry
// class when they cross into Temporal.
func TestActivities_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		streamErr    error
		nonRetryable bool
		delay        time.Duration
	}{
		{
			name: "server error is retryable",
			err:  &llmerrors.ProviderError{Provider: "scripted", StatusCode: http.StatusBadGateway, Message: "bad gateway"},
		},
		{
			name:  "throttled carries retry after",
			err:   &llmerrors.ProviderError{Provider: "scripted", StatusCode: http.StatusTooManyRequests, Message: "slow down", RetryAfter: 3},
			delay: 3 * time.Second,
		},
		{
			name:  "local rate limit",
			err:   &llmerrors.RateLimitError{Provider: "scripted", RetryAfter: 1, LocalLimit: true},
			delay: time.Second,
		},
		{
			name:         "bad request is final",
			err:          &llmerrors.ProviderError{Provider: "scripted", StatusCode: http.StatusBadRequest, Message: "bad"},
			nonRetryable: true,
		},
		{
			name:         "cancelled is final",
			err:          context.Canceled,
			nonRetryable: true,
		},
		{
			name:         "open breaker is final",
			err:          &llmerrors.ProviderError{Provider: "scripted", Type: llmerrors.ErrorTypeCircuitBreaker, Cause: llmerrors.ErrCircuitOpen},
			nonRetryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acts, sink := newActivities(&scriptedProvider{err: tt.err})

			for _, run := range []func(context.Context, activity.GenerateInput) (*activity.GenerateOutput, error){
				acts.Generate, acts.StreamText,
			} {
				out, err := run(context.Background(), activity.GenerateInput{Prompt: "p"})
				assert.Nil(t, out)

				var appErr *temporal.ApplicationError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.nonRetryable, appErr.NonRetryable())
				assert.Equal(t, tt.delay, appErr.NextRetryDelay())
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Empty(t, sink.Events())
		})
	}
}

func TestStreamText_BrokenStreamIsFinal(t *testing.T) {
	broken := &llmerrors.StreamIntegrityError{Provider: "scripted", Fragments: 1, Cause: io.ErrUnexpectedEOF}
	acts, sink := newActivities(&scriptedProvider{fragments: []string{"par"}, streamErr: broken})

	out, err := acts.StreamText(context.Background(), activity.GenerateInput{Prompt: "p"})
	assert.Nil(t, out, "partial text must not be returned")
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, sink.Events())
}

func TestActivities_InvalidInput(t *testing.T) {
	p := &scriptedProvider{resp: &transport.Response{Text: "x"}}
	acts, _ := newActivities(p)
	tooHot := 3.0

	for _, in := range []activity.GenerateInput{
		{},
		{Prompt: "p", Temperature: &tooHot},
		{Prompt: "p", MaxTokens: -1},
	} {
		_, err := acts.Generate(context.Background(), in)
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.True(t, appErr.NonRetryable())
		assert.ErrorIs(t, err, activity.ErrInvalidInput)

		_, err = acts.StreamText(context.Background(), in)
		assert.ErrorIs(t, err, activity.ErrInvalidInput)
	}
	assert.Nil(t, p.lastCfg, "invalid input never reaches the provider")
}

// failingSink rejects every envelope.
type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, events.Envelope) error {
	f.calls++
	return assert.AnError
}

func TestGenerate_SinkFailureDoesNotFailActivity(t *testing.T) {
	sink := &failingSink{}
	acts := activity.NewActivities(baseactivity.NewBaseActivities(sink),
		&scriptedProvider{resp: &transport.Response{Text: "ok"}})

	out, err := acts.Generate(context.Background(), activity.GenerateInput{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, 2, sink.calls, "one retry after the first failure")
}
