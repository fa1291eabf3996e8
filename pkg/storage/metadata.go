package storage

import (
	"sort"
	"sync"
)

// Metadata maps file names to byte lengths. It is safe for concurrent use.
type Metadata struct {
	mu    sync.RWMutex
	sizes map[string]int64
}

// NewMetadata creates an empty mapping.
func NewMetadata() *Metadata {
	return &Metadata{sizes: make(map[string]int64)}
}

func (m *Metadata) Set(name string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[name] = size
}

func (m *Metadata) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sizes, name)
}

func (m *Metadata) Get(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	size, ok := m.sizes[name]
	return size, ok
}

// Names returns every file name, sorted.
func (m *Metadata) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sizes))
	for name := range m.sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the mapping.
func (m *Metadata) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.sizes))
	for k, v := range m.sizes {
		out[k] = v
	}
	return out
}

// Replace swaps the whole mapping.
func (m *Metadata) Replace(sizes map[string]int64) {
	next := make(map[string]int64, len(sizes))
	for k, v := range sizes {
		next[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = next
}

// Totals returns the file count and the sum of sizes.
func (m *Metadata) Totals() (int, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, v := range m.sizes {
		total += v
	}
	return len(m.sizes), total
}
