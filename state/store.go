package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrCorrupt is returned by Store.Get when a stored value exists but
// cannot be decoded into the destination.
var ErrCorrupt = errors.New("state: corrupt stored value")

// Store is a durable key to JSON-value mapping. Set is last-write-wins.
type Store interface {
	// Get decodes the value stored under key into dst. It reports false
	// when the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Close() error
}

// MemoryStore keeps values in process memory. Used by tests and by
// paper runs that do not need to survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("%w: key %q: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = raw
	m.mu.Unlock()
	return nil
}

// SetRaw stores bytes verbatim, bypassing JSON encoding.
func (m *MemoryStore) SetRaw(key string, raw []byte) {
	m.mu.Lock()
	m.values[key] = append([]byte(nil), raw...)
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error { return nil }
