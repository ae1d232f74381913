package db

import (
	"context"
	"sort"
	"sync"
)

type memory struct {
	mu      sync.RWMutex
	records map[Namespace]map[string][]byte
}

func NewMemory() Store {
	return &memory{
		records: make(map[Namespace]map[string][]byte),
	}
}

func (m *memory) Get(_ context.Context, ns Namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.records[ns][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *memory) Put(_ context.Context, ns Namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[ns] == nil {
		m.records[ns] = make(map[string][]byte)
	}
	m.records[ns][key] = clone(value)
	return nil
}

func (m *memory) Delete(_ context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records[ns], key)
	return nil
}

func (m *memory) List(_ context.Context, ns Namespace) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records[ns]))
	for k := range m.records[ns] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m.records[ns][k]))
	}
	return out, nil
}

func (m *memory) Close() error {
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
