package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is a Disk kept in a map.
type Memory struct {
	mu      sync.RWMutex
	files   map[string][]byte
	types   map[string]string
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	return &Memory{
		files:   map[string][]byte{},
		types:   map[string]string{},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *Memory) Put(_ context.Context, path string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage/memory: read: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	m.types[path] = contentType
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok
}

func (m *Memory) URL(path string) string {
	return m.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.types, path)
	return nil
}

func (m *Memory) DeleteDirectory(_ context.Context, prefix string) error {
	pfx := strings.TrimRight(prefix, "/") + "/"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.files {
		if strings.HasPrefix(k, pfx) {
			delete(m.files, k)
			delete(m.types, k)
		}
	}
	return nil
}

// Bytes returns the stored content of path.
func (m *Memory) Bytes(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.files[path]
	return b, ok
}

// Paths lists stored paths in order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
