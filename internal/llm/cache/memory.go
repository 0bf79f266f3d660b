package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// MemoryStore keeps both tables in process memory for the life of the
// process. Values are copied on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]*transport.Response
	fragments map[string][]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]*transport.Response),
		fragments: make(map[string][]string),
	}
}

func (m *MemoryStore) GetResponse(_ context.Context, key string) (*transport.Response, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.responses[key]
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (m *MemoryStore) PutResponse(_ context.Context, key string, resp *transport.Response) error {
	m.mu.Lock()
	m.responses[key] = resp.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetFragments(_ context.Context, key string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	frags, ok := m.fragments[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(frags), true, nil
}

func (m *MemoryStore) PutFragments(_ context.Context, key string, fragments []string) error {
	m.mu.Lock()
	m.fragments[key] = slices.Clone(fragments)
	m.mu.Unlock()
	return nil
}

// Len reports the number of entries in each table.
func (m *MemoryStore) Len() (responses, streams int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.responses), len(m.fragments)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
