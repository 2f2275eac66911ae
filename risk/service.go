package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// TreeStore is the persistence collaborator: version-stamped read/write of
// tree snapshots. The engine does not know the storage technology;
// implementations live in risk/store.
type TreeStore interface {
	// Load returns the current snapshot of a tree, or ErrTreeNotFound.
	Load(ctx context.Context, id TreeID) (*RiskTree, error)
	// Save persists a new snapshot. It must reject snapshots whose version
	// is not exactly one above the stored version with ErrVersionConflict,
	// and returns the stored version on success.
	Save(ctx context.Context, tree *RiskTree) (int64, error)
}

// AggregateOptions tunes one GetAggregate request. Zero fields fall back to
// the configured defaults.
type AggregateOptions struct {
	NTrials     int
	Parallelism int
	Seed        *int64
}

// Service drives the cache-then-simulate-then-cache control flow and owns
// the invalidation path for node edits. It is the seam the (out-of-scope)
// transport layer calls into.
type Service struct {
	cfg    Config
	trees  TreeStore
	cache  *CacheManager
	gov    *Governor
	engine *Engine
	log    *logrus.Entry

	// flight deduplicates concurrent identical misses so one simulation
	// serves all waiters.
	flight singleflight.Group

	// Edits are serialized per tree (single writer per tree); simulations
	// keep reading the previous snapshot meanwhile.
	editMu   sync.Mutex
	treeLock map[TreeID]*sync.Mutex

	subMu   sync.Mutex
	nextSub int
	subs    map[int]chan InvalidationEvent
}

// NewService wires the engine, governor and cache manager around the given
// collaborators.
func NewService(cfg Config, trees TreeStore, cacheStore CacheStore) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	gov, err := NewGovernor(cfg.MaxConcurrentSimulations, cfg.Admission)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		trees:    trees,
		cache:    NewCacheManager(cacheStore, cfg),
		gov:      gov,
		engine:   NewEngine(cfg),
		log:      logrus.WithField("component", "service"),
		treeLock: make(map[TreeID]*sync.Mutex),
		subs:     make(map[int]chan InvalidationEvent),
	}, nil
}

// GetAggregate returns the aggregate statistics for one node of a tree at
// the tree's current version, simulating on a cache miss. An empty nodeID
// means the root.
//
// Parameter bounds are validated before the governor is consulted, so an
// out-of-range request consumes no simulation slot and runs zero trials.
func (s *Service) GetAggregate(ctx context.Context, treeID TreeID, nodeID NodeID, opts AggregateOptions) (*AggregateResult, error) {
	tree, err := s.trees.Load(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if nodeID == "" {
		nodeID = tree.Root
	}
	if _, ok := tree.Node(nodeID); !ok {
		return nil, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, nodeID, treeID)
	}

	spec := s.runSpec(opts)
	if spec.NTrials <= 0 || spec.NTrials > s.cfg.MaxNTrials {
		return nil, fmt.Errorf("%w: nTrials=%d, want 1..%d", ErrParameterOutOfRange, spec.NTrials, s.cfg.MaxNTrials)
	}
	if spec.Parallelism <= 0 || spec.Parallelism > s.cfg.MaxParallelism {
		return nil, fmt.Errorf("%w: parallelism=%d, want 1..%d", ErrParameterOutOfRange, spec.Parallelism, s.cfg.MaxParallelism)
	}

	if res, ok, err := s.cache.Get(ctx, treeID, nodeID, tree.Version); err != nil {
		// Cache unreadable: fail closed by recomputing rather than guessing.
		s.log.Warnf("cache read failed for tree=%s node=%s, recomputing: %v", treeID, nodeID, err)
	} else if ok {
		return res, nil
	}

	key := fmt.Sprintf("%s|%s|%d|%d|%d", treeID, nodeID, tree.Version, spec.NTrials, spec.Seed)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.simulateAndCache(ctx, tree, nodeID, spec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AggregateResult), nil
}

// simulateAndCache admits the run through the governor, executes the trial
// batch, reduces the requested node and stores the aggregate under the
// snapshot's version.
func (s *Service) simulateAndCache(ctx context.Context, tree *RiskTree, nodeID NodeID, spec RunSpec) (*AggregateResult, error) {
	release, err := s.gov.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ts, err := s.engine.Run(ctx, tree, spec)
	if err != nil {
		return nil, err
	}
	samples, ok := ts.NodeSamples(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %q missing from trial set", ErrInconsistentTree, nodeID)
	}
	res, err := Reduce(tree.ID, nodeID, tree.Version, samples)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, res); err != nil {
		// The computed result is still correct; only future hits are lost.
		s.log.Warnf("cache put failed for tree=%s node=%s: %v", tree.ID, nodeID, err)
	}
	return res, nil
}

// EditNode applies a parametric edit to one node, persists the new snapshot
// and invalidates the cached aggregates for the node and all its ancestors.
// It returns the new tree version.
//
// If invalidation cannot reach the cache store the edit is already durable;
// the ErrCacheUnavailable tells the caller the cache must not be trusted
// until a later invalidation or version bump supersedes the stale entries —
// version-checked Gets keep them unservable meanwhile.
func (s *Service) EditNode(ctx context.Context, treeID TreeID, nodeID NodeID, params NodeParams) (int64, error) {
	unlock := s.lockTree(treeID)
	defer unlock()

	tree, err := s.trees.Load(ctx, treeID)
	if err != nil {
		return 0, err
	}
	next, err := tree.WithNodeEdit(nodeID, params)
	if err != nil {
		return 0, err
	}
	version, err := s.trees.Save(ctx, next)
	if err != nil {
		return 0, err
	}

	removed, err := s.cache.Invalidate(ctx, next, nodeID)
	if err != nil {
		return version, err
	}
	s.publish(InvalidationEvent{TreeID: treeID, NodeID: nodeID, Removed: removed, Version: version})
	s.log.Infof("edited node=%s tree=%s: version=%d, %d cache entries invalidated", nodeID, treeID, version, removed)
	return version, nil
}

// AddNode attaches a new node under parentID. The parent chain's aggregates
// become stale, so the parent is invalidated like an edited node.
func (s *Service) AddNode(ctx context.Context, treeID TreeID, parentID NodeID, node *RiskNode) (int64, error) {
	return s.structuralEdit(ctx, treeID, func(t *RiskTree) (*RiskTree, NodeID, error) {
		next, err := t.WithNodeAdded(parentID, node)
		return next, parentID, err
	})
}

// RemoveNode detaches a node and its subtree. Invalidation targets the old
// parent, which covers every surviving ancestor; the removed subtree's own
// entries become unreachable by version and are left to the store's eviction.
func (s *Service) RemoveNode(ctx context.Context, treeID TreeID, nodeID NodeID) (int64, error) {
	return s.structuralEdit(ctx, treeID, func(t *RiskTree) (*RiskTree, NodeID, error) {
		parent, ok := t.Parent(nodeID)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, nodeID, treeID)
		}
		next, err := t.WithNodeRemoved(nodeID)
		return next, parent, err
	})
}

// MoveNode reparents a node. Both the old and the new parent chains depend
// on the moved subtree, so both are invalidated.
func (s *Service) MoveNode(ctx context.Context, treeID TreeID, nodeID NodeID, newParentID NodeID) (int64, error) {
	unlock := s.lockTree(treeID)
	defer unlock()

	tree, err := s.trees.Load(ctx, treeID)
	if err != nil {
		return 0, err
	}
	oldParent, ok := tree.Parent(nodeID)
	if !ok {
		return 0, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, nodeID, treeID)
	}
	next, err := tree.WithNodeMoved(nodeID, newParentID)
	if err != nil {
		return 0, err
	}
	version, err := s.trees.Save(ctx, next)
	if err != nil {
		return 0, err
	}
	removed, err := s.cache.Invalidate(ctx, next, nodeID)
	if err != nil {
		return version, err
	}
	if n, err := s.cache.Invalidate(ctx, next, oldParent); err == nil {
		removed += n
	} else {
		return version, err
	}
	s.publish(InvalidationEvent{TreeID: treeID, NodeID: nodeID, Removed: removed, Version: version})
	return version, nil
}

// structuralEdit is the shared load-edit-save-invalidate path for add and
// remove. edit returns the next snapshot plus the node whose ancestor chain
// goes stale.
func (s *Service) structuralEdit(ctx context.Context, treeID TreeID, edit func(*RiskTree) (*RiskTree, NodeID, error)) (int64, error) {
	unlock := s.lockTree(treeID)
	defer unlock()

	tree, err := s.trees.Load(ctx, treeID)
	if err != nil {
		return 0, err
	}
	next, target, err := edit(tree)
	if err != nil {
		return 0, err
	}
	version, err := s.trees.Save(ctx, next)
	if err != nil {
		return 0, err
	}
	removed, err := s.cache.Invalidate(ctx, next, target)
	if err != nil {
		return version, err
	}
	s.publish(InvalidationEvent{TreeID: treeID, NodeID: target, Removed: removed, Version: version})
	return version, nil
}

// Subscribe returns a channel of invalidation events. Slow subscribers drop
// events rather than block the edit path.
func (s *Service) Subscribe() (<-chan InvalidationEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan InvalidationEvent, 16)
	s.subs[id] = ch
	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Service) publish(ev InvalidationEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warnf("subscriber %d lagging, dropping invalidation event", id)
		}
	}
}

// Governor exposes the admission gate, mainly for observability.
func (s *Service) Governor() *Governor { return s.gov }

// Cache exposes the cache manager, mainly for observability.
func (s *Service) Cache() *CacheManager { return s.cache }

func (s *Service) runSpec(opts AggregateOptions) RunSpec {
	spec := RunSpec{
		NTrials:     opts.NTrials,
		Parallelism: opts.Parallelism,
		Seed:        s.cfg.DefaultSeed,
	}
	if spec.NTrials == 0 {
		spec.NTrials = s.cfg.DefaultNTrials
	}
	if spec.Parallelism == 0 {
		spec.Parallelism = s.cfg.DefaultParallelism
	}
	if opts.Seed != nil {
		spec.Seed = *opts.Seed
	}
	return spec
}

// lockTree returns the per-tree edit mutex, locked.
func (s *Service) lockTree(id TreeID) func() {
	s.editMu.Lock()
	mu, ok := s.treeLock[id]
	if !ok {
		mu = &sync.Mutex{}
		s.treeLock[id] = mu
	}
	s.editMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
