package risk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// CacheStore is the backing store for computed aggregates, keyed by
// (tree id, node id). Implementations keep at most one entry per key and
// resolve concurrent Puts for the same key by version: the higher version
// wins, never wall-clock order. Get and Delete must be linearizable with
// respect to Put for the same key.
//
// MemoryCacheStore serves single-process use and tests; RedisCacheStore
// (cache_redis.go) serves shared deployments.
type CacheStore interface {
	// Get returns the stored entry for the key, or ok=false on absence.
	Get(ctx context.Context, treeID TreeID, nodeID NodeID) (*AggregateResult, bool, error)
	// Put stores res under (res.TreeID, res.NodeID) unless an entry with a
	// higher version is already present.
	Put(ctx context.Context, res *AggregateResult) error
	// Delete removes the entry for the key and reports whether one existed.
	Delete(ctx context.Context, treeID TreeID, nodeID NodeID) (bool, error)
}

// InvalidationEvent describes one completed invalidation, for observers such
// as a push-notification collaborator. The core does not retain events.
type InvalidationEvent struct {
	TreeID  TreeID `json:"tree_id"`
	NodeID  NodeID `json:"node_id"` // the edited node
	Removed int    `json:"removed"` // cache entries actually removed
	Version int64  `json:"version"` // tree version after the edit
}

// CacheManager serves aggregates at the tree's current version and removes
// exactly the entries an edit stales.
//
// Per (tree, node) key the lifecycle is Empty -> Cached(v) -> Invalidated ->
// Cached(v+k): a stored entry is served only while its version equals the
// tree's current version, so stale data is structurally unservable even if
// invalidation lags.
//
// Store operations are idempotent and retried a bounded number of times;
// exhausting the retries surfaces ErrCacheUnavailable and the caller must
// fail closed (recompute rather than trust the cache).
type CacheManager struct {
	store    CacheStore
	attempts int
	backoff  time.Duration
	log      *logrus.Entry

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// NewCacheManager wraps a CacheStore with version checking and retries.
func NewCacheManager(store CacheStore, cfg Config) *CacheManager {
	return &CacheManager{
		store:    store,
		attempts: cfg.CacheRetryAttempts,
		backoff:  cfg.CacheRetryBackoff,
		log:      logrus.WithField("component", "cache"),
	}
}

// Get returns the cached aggregate for (treeID, nodeID) only if its stored
// version equals currentVersion. Any version mismatch is a miss; the stale
// entry is left for the next Put to supersede.
func (m *CacheManager) Get(ctx context.Context, treeID TreeID, nodeID NodeID, currentVersion int64) (*AggregateResult, bool, error) {
	var res *AggregateResult
	var ok bool
	err := m.withRetry(ctx, "get", func() error {
		var err error
		res, ok, err = m.store.Get(ctx, treeID, nodeID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !ok || res.Version != currentVersion {
		m.misses.Add(1)
		return nil, false, nil
	}
	m.hits.Add(1)
	return res, true, nil
}

// Put stores a computed aggregate. The store keeps the higher version on
// concurrent puts for the same key.
func (m *CacheManager) Put(ctx context.Context, res *AggregateResult) error {
	return m.withRetry(ctx, "put", func() error {
		return m.store.Put(ctx, res)
	})
}

// Invalidate removes the cache entries for nodeID and every ancestor up to
// the root of the snapshot — every aggregate whose dependency set contains
// the node — and returns the number of entries actually removed. Sibling
// subtrees are untouched.
func (m *CacheManager) Invalidate(ctx context.Context, tree *RiskTree, nodeID NodeID) (int, error) {
	if _, ok := tree.Node(nodeID); !ok {
		return 0, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, nodeID, tree.ID)
	}
	targets := append([]NodeID{nodeID}, tree.Ancestors(nodeID)...)
	removed := 0
	for _, id := range targets {
		var existed bool
		err := m.withRetry(ctx, "delete", func() error {
			var err error
			existed, err = m.store.Delete(ctx, tree.ID, id)
			return err
		})
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	m.invalidations.Add(1)
	m.log.Debugf("invalidated %d entries for tree=%s node=%s", removed, tree.ID, nodeID)
	return removed, nil
}

// Stats returns cumulative hit/miss/invalidation counters.
func (m *CacheManager) Stats() (hits, misses, invalidations int64) {
	return m.hits.Load(), m.misses.Load(), m.invalidations.Load()
}

// withRetry runs an idempotent store operation with bounded attempts and a
// fixed backoff, surfacing ErrCacheUnavailable once they are exhausted.
func (m *CacheManager) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < m.attempts {
			m.log.Warnf("cache %s failed (attempt %d/%d): %v", op, attempt, m.attempts, lastErr)
			select {
			case <-time.After(m.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrCacheUnavailable, op, m.attempts, lastErr)
}

// === MemoryCacheStore ===

type cacheKey struct {
	tree TreeID
	node NodeID
}

// MemoryCacheStore is a thread-safe in-process CacheStore. Reads and writes
// for the same key are serialized by a single RWMutex, which gives the
// per-key linearizability the manager relies on.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[cacheKey]*AggregateResult
}

// NewMemoryCacheStore creates an empty in-memory store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[cacheKey]*AggregateResult)}
}

// Get implements CacheStore.
func (s *MemoryCacheStore) Get(_ context.Context, treeID TreeID, nodeID NodeID) (*AggregateResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.entries[cacheKey{treeID, nodeID}]
	return res, ok, nil
}

// Put implements CacheStore. Last-writer-wins by version: an entry is only
// replaced by an equal or higher version.
func (s *MemoryCacheStore) Put(_ context.Context, res *AggregateResult) error {
	key := cacheKey{res.TreeID, res.NodeID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur.Version > res.Version {
		return nil
	}
	s.entries[key] = res
	return nil
}

// Delete implements CacheStore.
func (s *MemoryCacheStore) Delete(_ context.Context, treeID TreeID, nodeID NodeID) (bool, error) {
	key := cacheKey{treeID, nodeID}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

// Len returns the number of stored entries.
func (s *MemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
