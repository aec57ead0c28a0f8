package kvstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrWriteFailed is returned by a Memory store whose writes were disabled
// with FailWrites.
var ErrWriteFailed = errors.New("kvstore: write failed")

// Memory is an in-process Store. It is used in tests and as a fallback when
// the database cannot be opened.
type Memory struct {
	mu         sync.RWMutex
	data       map[string][]byte
	failWrites bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// FailWrites makes every subsequent Set and Delete fail (simulates a full disk).
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrWriteFailed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrWriteFailed
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Stats(_ context.Context, prefix string) (int, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int
	var size int64
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			count++
			size += int64(len(v))
		}
	}
	return count, size, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
