package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore used in tests and local
// development when no S3 bucket is available.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryStore creates an empty in-memory object store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Upload stores an object under the given key
func (m *MemoryStore) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, len(body))
	copy(data, body)
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

// Download fetches an object's content
func (m *MemoryStore) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete removes an object; missing keys are not an error, matching S3
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// List returns the keys under a prefix in sorted order
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// PresignGet returns a synthetic URL; good enough for handler tests
func (m *MemoryStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object not found: %s", key)
	}
	return "memory://" + key, nil
}
