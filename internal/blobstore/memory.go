package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-process blob store for tests and dry runs.
type Memory struct {
	bucket string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *Memory) PutImage(_ context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *Memory) PutJSON(_ context.Context, key string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *Memory) GetJSON(_ context.Context, key string, v any) error {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("object not found: %s", key)
	}
	return json.Unmarshal(data, v)
}

func (m *Memory) GetObject(_ context.Context, key string) ([]byte, error) {
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

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Bucket() string { return m.bucket }

// Keys returns all stored keys, for test assertions.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Raw returns the stored bytes for a key, for test assertions.
func (m *Memory) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
