package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryStore keeps accounts in memory. With a path it also persists them as
// JSON, rewriting the file atomically on every change.
type MemoryStore struct {
	path     string
	accounts map[string]Account
	mu       sync.RWMutex
}

// NewMemoryStore creates a store without persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

// NewFileStore creates a store persisted at path, loading what is there.
func NewFileStore(path string) (*MemoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &MemoryStore{path: path, accounts: make(map[string]Account)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) Save(ctx context.Context, a Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.Username]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, a.Username)
	}
	s.accounts[a.Username] = a
	if err := s.persist(); err != nil {
		delete(s.accounts, a.Username)
		return err
	}
	return nil
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[username]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return a, nil
}

func (s *MemoryStore) Delete(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	delete(s.accounts, username)
	if err := s.persist(); err != nil {
		s.accounts[username] = a
		return err
	}
	return nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// persist writes the accounts file. Caller holds s.mu.
func (s *MemoryStore) persist() error {
	if s.path == "" {
		return nil
	}
	list := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace accounts: %w", err)
	}
	return nil
}

func (s *MemoryStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var list []Account
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	for _, a := range list {
		s.accounts[a.Username] = a
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
