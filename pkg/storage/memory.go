package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a BlobStore held in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailPuts makes every Put fail with ErrLocalIO, for exercising abort paths.
	FailPuts bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts {
		return fmt.Errorf("%w: put %s: injected failure", ErrLocalIO, name)
	}
	s.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.blobs, name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BlobInfo, 0, len(s.blobs))
	for name, data := range s.blobs {
		out = append(out, BlobInfo{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetFailPuts toggles injected Put failures.
func (s *MemoryStore) SetFailPuts(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailPuts = fail
}

var _ BlobStore = (*MemoryStore)(nil)
