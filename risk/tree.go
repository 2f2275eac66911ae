package risk

import (
	"fmt"
	"sort"
	"time"
)

// TreeID identifies a risk tree. NodeID is unique within one tree only.
type (
	TreeID string
	NodeID string
)

// CombineRule selects how a branch aggregates its children's losses within
// one trial. The zero value means sum.
type CombineRule string

const (
	// CombineSum adds the children's losses (default).
	CombineSum CombineRule = "sum"
	// CombineMax takes the largest child loss.
	CombineMax CombineRule = "max"
)

// RiskNode is one node of a risk tree. The tree owns its nodes; a node
// refers to its parent and children by id only, resolved through the tree's
// arena, so the structure cannot form ownership cycles.
//
// Exactly leaves carry a Distribution; branches aggregate their children.
type RiskNode struct {
	ID       NodeID        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Parent   NodeID        `json:"parent,omitempty" yaml:"parent,omitempty"` // empty for the root
	Children []NodeID      `json:"children,omitempty" yaml:"children,omitempty"`
	Leaf     bool          `json:"leaf" yaml:"leaf"`
	Combine  CombineRule   `json:"combine,omitempty" yaml:"combine,omitempty"` // branches only; empty = sum
	Dist     *Distribution `json:"dist,omitempty" yaml:"dist,omitempty"`       // leaves only
}

// RiskTree is an immutable snapshot of a risk tree at one version.
//
// Snapshots are never mutated: edits (tree_edit.go) produce a new snapshot
// with Version+1 that shares untouched nodes with its predecessor, so an
// in-flight simulation holding the old snapshot keeps reading consistent
// state without locks.
type RiskTree struct {
	ID        TreeID
	Name      string
	Root      NodeID
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	maxDepth int
	nodes    map[NodeID]*RiskNode
}

// NewRiskTree builds version 1 of a tree from an arena of nodes and
// validates it. maxDepth bounds the root-to-leaf depth for this tree's whole
// lifetime; deeper edits fail with ErrTreeTooDeep.
func NewRiskTree(id TreeID, name string, root NodeID, nodes []*RiskNode, maxDepth int) (*RiskTree, error) {
	arena := make(map[NodeID]*RiskNode, len(nodes))
	for _, n := range nodes {
		if _, dup := arena[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %q", ErrInconsistentTree, n.ID)
		}
		arena[n.ID] = n
	}
	now := time.Now().UTC()
	t := &RiskTree{
		ID:        id,
		Name:      name,
		Root:      root,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		maxDepth:  maxDepth,
		nodes:     arena,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// RestoreTree rebuilds a snapshot from persisted state without resetting the
// version or timestamps. Used by tree stores only; the snapshot is validated
// the same way as a fresh one.
func RestoreTree(id TreeID, name string, root NodeID, version int64, maxDepth int, createdAt, updatedAt time.Time, nodes []*RiskNode) (*RiskTree, error) {
	t, err := NewRiskTree(id, name, root, nodes, maxDepth)
	if err != nil {
		return nil, err
	}
	t.Version = version
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt
	return t, nil
}

// Node returns the node for id, or false if absent.
func (t *RiskTree) Node(id NodeID) (*RiskNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of nodes in the tree.
func (t *RiskTree) Len() int { return len(t.nodes) }

// MaxDepth returns the configured depth bound for this tree.
func (t *RiskTree) MaxDepth() int { return t.maxDepth }

// Children returns the ordered child ids of a node (nil for leaves or
// unknown ids).
func (t *RiskTree) Children(id NodeID) []NodeID {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return n.Children
}

// Parent returns the parent id of a node; false for the root or unknown ids.
func (t *RiskTree) Parent(id NodeID) (NodeID, bool) {
	n, ok := t.nodes[id]
	if !ok || n.Parent == "" {
		return "", false
	}
	return n.Parent, true
}

// IsLeaf reports whether id names a leaf node.
func (t *RiskTree) IsLeaf(id NodeID) bool {
	n, ok := t.nodes[id]
	return ok && n.Leaf
}

// Ancestors returns the chain of ids strictly above id, ordered from parent
// to root. For the root it returns nil. The chain is finite for any valid
// snapshot (validate bounds it by maxDepth).
func (t *RiskTree) Ancestors(id NodeID) []NodeID {
	var chain []NodeID
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	for n.Parent != "" {
		chain = append(chain, n.Parent)
		next, ok := t.nodes[n.Parent]
		if !ok {
			break
		}
		n = next
	}
	return chain
}

// Nodes returns the arena contents ordered by id. The slice is fresh but the
// node pointers are the shared immutable nodes; callers must not modify them.
func (t *RiskTree) Nodes() []*RiskNode {
	out := make([]*RiskNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// postorder returns every node id with children before parents. Used by the
// simulation engine for bottom-up aggregation; computed per run, not stored,
// so snapshots stay plain data.
func (t *RiskTree) postorder() []NodeID {
	order := make([]NodeID, 0, len(t.nodes))
	var walk func(id NodeID)
	walk = func(id NodeID) {
		for _, c := range t.Children(id) {
			walk(c)
		}
		order = append(order, id)
	}
	walk(t.Root)
	return order
}

// validate enforces the structural invariants: the root exists and has no
// parent, every other node has exactly one parent whose child list names it,
// parent/child references resolve, exactly leaves carry distributions,
// branches have children, the tree is acyclic, every node is reachable from
// the root, and depth does not exceed maxDepth.
func (t *RiskTree) validate() error {
	root, ok := t.nodes[t.Root]
	if !ok {
		return fmt.Errorf("%w: root %q not in arena", ErrInconsistentTree, t.Root)
	}
	if root.Parent != "" {
		return fmt.Errorf("%w: root %q has parent %q", ErrInconsistentTree, t.Root, root.Parent)
	}

	for id, n := range t.nodes {
		if n.ID != id {
			return fmt.Errorf("%w: arena key %q holds node %q", ErrInconsistentTree, id, n.ID)
		}
		if n.Leaf {
			if len(n.Children) > 0 {
				return fmt.Errorf("%w: leaf %q has children", ErrInconsistentTree, id)
			}
			if n.Dist == nil {
				return fmt.Errorf("%w: leaf %q has no distribution", ErrInconsistentTree, id)
			}
			if err := n.Dist.Validate(); err != nil {
				return fmt.Errorf("leaf %q: %w", id, err)
			}
		} else {
			if n.Dist != nil {
				return fmt.Errorf("%w: branch %q carries distribution parameters", ErrInconsistentTree, id)
			}
			if len(n.Children) == 0 {
				return fmt.Errorf("%w: branch %q has no children", ErrInconsistentTree, id)
			}
			if n.Combine != "" && n.Combine != CombineSum && n.Combine != CombineMax {
				return fmt.Errorf("%w: branch %q has unknown combine rule %q", ErrInconsistentTree, id, n.Combine)
			}
		}
		if id != t.Root {
			parent, ok := t.nodes[n.Parent]
			if !ok {
				return fmt.Errorf("%w: node %q refers to missing parent %q", ErrInconsistentTree, id, n.Parent)
			}
			if !containsID(parent.Children, id) {
				return fmt.Errorf("%w: node %q not listed by parent %q", ErrInconsistentTree, id, n.Parent)
			}
		}
		for _, c := range n.Children {
			child, ok := t.nodes[c]
			if !ok {
				return fmt.Errorf("%w: node %q refers to missing child %q", ErrInconsistentTree, id, c)
			}
			if child.Parent != id {
				return fmt.Errorf("%w: child %q of %q claims parent %q", ErrInconsistentTree, c, id, child.Parent)
			}
		}
	}

	// Reachability walk from the root doubles as the cycle and depth check:
	// a cycle through the arena would either revisit a node or run past the
	// arena size.
	seen := make(map[NodeID]bool, len(t.nodes))
	var walk func(id NodeID, depth int) error
	walk = func(id NodeID, depth int) error {
		if seen[id] {
			return fmt.Errorf("%w: cycle through node %q", ErrInconsistentTree, id)
		}
		seen[id] = true
		if depth > t.maxDepth {
			return fmt.Errorf("%w: node %q at depth %d exceeds limit %d", ErrTreeTooDeep, id, depth, t.maxDepth)
		}
		for _, c := range t.nodes[id].Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(t.Root, 1); err != nil {
		return err
	}
	if len(seen) != len(t.nodes) {
		return fmt.Errorf("%w: %d of %d nodes unreachable from root", ErrInconsistentTree, len(t.nodes)-len(seen), len(t.nodes))
	}
	return nil
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
