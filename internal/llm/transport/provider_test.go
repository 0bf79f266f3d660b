package transport_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-llmware/internal/llm/transport"
)

var errBoom = errors.New("boom")

// tagMiddleware prefixes generated text so tests can observe wrap order.
func tagMiddleware(tag string) transport.Middleware {
	return func(next transport.Provider) transport.Provider {
		return &transport.Funcs{
			ProviderName: next.Name(),
			GenerateFn: func(ctx context.Context, prompt string, cfg *transport.Config) (*transport.Response, error) {
				resp, err := next.Generate(ctx, prompt, cfg)
				if err != nil {
					return nil, err
				}
				return &transport.Response{Text: tag + resp.Text}, nil
			},
		}
	}
}

// TestChain_Order verifies the first middleware is the outermost layer.
func TestChain_Order(t *testing.T) {
	core := &transport.Funcs{
		ProviderName: "core",
		GenerateFn: func(_ context.Context, prompt string, _ *transport.Config) (*transport.Response, error) {
			return &transport.Response{Text: prompt}, nil
		},
	}

	p := transport.Chain(core, tagMiddleware("a"), nil, tagMiddleware("b"))

	resp, err := p.Generate(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "abx", resp.Text)
	assert.Equal(t, "core", p.Name())
}

// TestFuncs_Unsupported verifies nil functions report ErrNotSupported.
func TestFuncs_Unsupported(t *testing.T) {
	p := &transport.Funcs{ProviderName: "empty"}

	_, err := p.Generate(context.Background(), "x", nil)
	require.ErrorIs(t, err, transport.ErrNotSupported)

	_, err = p.Stream(context.Background(), "x", nil)
	require.ErrorIs(t, err, transport.ErrNotSupported)
}

// TestConfig_Model covers the nil receiver.
func TestConfig_Model(t *testing.T) {
	var cfg *transport.Config
	assert.Empty(t, cfg.Model())
	assert.Equal(t, "gpt-4o", (&transport.Config{ModelName: "gpt-4o"}).Model())
}

// TestResponse_Clone verifies usage is copied rather than shared.
func TestResponse_Clone(t *testing.T) {
	orig := &transport.Response{Text: "hi", Usage: &transport.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}}
	cp := orig.Clone()
	cp.Usage.PromptTokens = 99

	assert.Equal(t, int64(1), orig.Usage.PromptTokens)
	assert.Equal(t, "hi", cp.Text)

	var nilResp *transport.Response
	assert.Nil(t, nilResp.Clone())
}

func TestSliceStream(t *testing.T) {
	src := []string{"a", "b", "c"}
	s := transport.NewSliceStream(src)
	src[0] = "mutated"

	got, err := transport.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err = s.Recv()
	assert.ErrorIs(t, err, transport.ErrStreamClosed, "Collect closes the stream")
}

// TestSliceStream_EarlyClose verifies stopping early is safe and idempotent.
func TestSliceStream_EarlyClose(t *testing.T) {
	s := transport.NewSliceStream([]string{"a", "b"})

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", f)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Recv()
	assert.ErrorIs(t, err, transport.ErrStreamClosed)
}

// TestFuncStream_ErrorMidway verifies Collect returns fragments received
// before the failure alongside the error.
func TestFuncStream_ErrorMidway(t *testing.T) {
	calls := 0
	closed := 0
	s := transport.NewFuncStream(func() (string, error) {
		calls++
		if calls > 2 {
			return "", errBoom
		}
		return "x", nil
	}, func() error {
		closed++
		return nil
	})

	got, err := transport.Collect(s)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"x", "x"}, got)
	assert.Equal(t, 1, closed)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, closed, "close hook runs once")
}

func TestText(t *testing.T) {
	assert.Equal(t, "Hello world", transport.Text([]string{"Hel", "lo ", "world"}))
	assert.Empty(t, transport.Text(nil))

	s := transport.NewSliceStream(nil)
	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
