// Package store provides TreeStore implementations: an in-memory store for
// tests and single-process use, and a SQLite-backed store for durability.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/risk-sim/risk-sim/risk"
)

// MemoryStore is a thread-safe in-process TreeStore.
type MemoryStore struct {
	mu    sync.RWMutex
	trees map[risk.TreeID]*risk.RiskTree
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trees: make(map[risk.TreeID]*risk.RiskTree)}
}

// NewTreeID mints a fresh tree identity.
func NewTreeID() risk.TreeID {
	return risk.TreeID(uuid.NewString())
}

// Load implements risk.TreeStore.
func (s *MemoryStore) Load(_ context.Context, id risk.TreeID) (*risk.RiskTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", risk.ErrTreeNotFound, id)
	}
	return t, nil
}

// Save implements risk.TreeStore. New trees must arrive at version 1;
// existing trees must advance by exactly one version, otherwise the save
// lost a race with a concurrent edit and fails with ErrVersionConflict.
func (s *MemoryStore) Save(_ context.Context, tree *risk.RiskTree) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.trees[tree.ID]
	switch {
	case !ok && tree.Version != 1:
		return 0, fmt.Errorf("%w: new tree %q at version %d, want 1", risk.ErrVersionConflict, tree.ID, tree.Version)
	case ok && tree.Version != cur.Version+1:
		return 0, fmt.Errorf("%w: tree %q at version %d, store holds %d", risk.ErrVersionConflict, tree.ID, tree.Version, cur.Version)
	}
	s.trees[tree.ID] = tree
	return tree.Version, nil
}
