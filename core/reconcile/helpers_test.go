package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustSnapshot(t *testing.T, raw string) Snapshot {
	t.Helper()
	s, err := DecodeSnapshot([]byte(raw))
	require.NoError(t, err)
	return s
}

// memStore is a Store with failure injection.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte

	failWrite  func(key string) error
	dropWrites map[string]bool
	afterWrite func(key string)
	// honorCancel makes every call fail once its context is done.
	honorCancel bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if m.honorCancel && ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Write(ctx context.Context, key string, value []byte) error {
	if m.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.afterWrite != nil {
		defer m.afterWrite(key)
	}
	if m.failWrite != nil {
		if err := m.failWrite(key); err != nil {
			return err
		}
	}
	if m.dropWrites[key] {
		m.data[key] = []byte("{}")
		return nil
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var errDisk = errors.New("disk full")
