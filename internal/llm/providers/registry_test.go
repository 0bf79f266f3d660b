package providers_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-llmware/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/providers"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    any
		wantErr error
	}{
		{name: providers.ProviderOpenAI, want: &providers.OpenAIAdapter{}},
		{name: providers.ProviderOllama, want: &providers.OllamaAdapter{}},
		{name: "anthropic", wantErr: providers.ErrUnsupportedProvider},
		{name: "", wantErr: providers.ErrUnsupportedProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := providers.NewBackend(tt.name, configuration.ProviderConfig{}, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.Equal(t, tt.name, p.Name())
		})
	}
}

func TestRegistry(t *testing.T) {
	r := providers.NewRegistry()
	_, err := r.Get("ollama")
	require.ErrorIs(t, err, llmerrors.ErrUnknownProvider)

	var wg sync.WaitGroup
	for _, name := range []string{"ollama", "openai", "local", "ollama"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(&transport.Funcs{ProviderName: name})
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"local", "ollama", "openai"}, r.Names())
	p, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}
