package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	baseURL        string
	rejectExisting bool

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty store.
func NewMemory(baseURL string, rejectExisting bool) *Memory {
	return &Memory{baseURL: baseURL, rejectExisting: rejectExisting, objects: make(map[string][]byte)}
}

// List implements Store.
func (m *Memory) List(ctx context.Context, prefix, search string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := "."
	if prefix != "" {
		k, err := cleanKey(prefix)
		if err != nil {
			return nil, err
		}
		dir = k
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		if path.Dir(k) == dir && strings.Contains(path.Base(k), search) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[k]; ok && m.rejectExisting {
		return "", fmt.Errorf("%w: %s", ErrExists, k)
	}
	m.objects[k] = append([]byte(nil), data...)
	return publicURL(m.baseURL, k), nil
}

// Get returns a copy of the object at key.
func (m *Memory) Get(key string) ([]byte, bool) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objects[k]
	return append([]byte(nil), d...), ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
