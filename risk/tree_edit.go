package risk

import (
	"fmt"
	"time"
)

// NodeParams carries the fields a node edit may change. Nil fields are left
// untouched.
type NodeParams struct {
	Name    *string       `json:"name,omitempty" yaml:"name,omitempty"`
	Combine *CombineRule  `json:"combine,omitempty" yaml:"combine,omitempty"`
	Dist    *Distribution `json:"dist,omitempty" yaml:"dist,omitempty"`
}

// clone copies the snapshot shell and its arena map. Node pointers are
// shared with the source; edits replace only the nodes they touch, so the
// old snapshot stays fully readable for in-flight simulations.
func (t *RiskTree) clone() *RiskTree {
	nodes := make(map[NodeID]*RiskNode, len(t.nodes))
	for id, n := range t.nodes {
		nodes[id] = n
	}
	next := *t
	next.nodes = nodes
	next.Version = t.Version + 1
	next.UpdatedAt = time.Now().UTC()
	return &next
}

// copyNode returns a shallow copy of one node with fresh Children backing.
func copyNode(n *RiskNode) *RiskNode {
	c := *n
	c.Children = append([]NodeID(nil), n.Children...)
	return &c
}

// WithNodeEdit applies a parametric edit to one node and returns the new
// snapshot at Version+1. Distribution changes are only legal on leaves and
// combine-rule changes only on branches; the receiver is never modified.
func (t *RiskTree) WithNodeEdit(id NodeID, params NodeParams) (*RiskTree, error) {
	old, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, id, t.ID)
	}
	if params.Dist != nil && !old.Leaf {
		return nil, fmt.Errorf("%w: cannot set distribution on branch %q", ErrInconsistentTree, id)
	}
	if params.Combine != nil && old.Leaf {
		return nil, fmt.Errorf("%w: cannot set combine rule on leaf %q", ErrInconsistentTree, id)
	}
	if params.Dist != nil {
		if err := params.Dist.Validate(); err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
	}

	next := t.clone()
	n := copyNode(old)
	if params.Name != nil {
		n.Name = *params.Name
	}
	if params.Combine != nil {
		n.Combine = *params.Combine
	}
	if params.Dist != nil {
		d := *params.Dist
		n.Dist = &d
	}
	next.nodes[id] = n
	return next, nil
}

// WithNodeAdded attaches a new node under parentID and returns the new
// snapshot. The node must not collide with an existing id, and the result
// must stay within the depth bound.
func (t *RiskTree) WithNodeAdded(parentID NodeID, node *RiskNode) (*RiskTree, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: parent %q in tree %q", ErrNodeNotFound, parentID, t.ID)
	}
	if _, dup := t.nodes[node.ID]; dup {
		return nil, fmt.Errorf("%w: duplicate node id %q", ErrInconsistentTree, node.ID)
	}
	if parent.Leaf {
		return nil, fmt.Errorf("%w: parent %q is a leaf", ErrInconsistentTree, parentID)
	}

	next := t.clone()
	n := copyNode(node)
	n.Parent = parentID
	p := copyNode(parent)
	p.Children = append(p.Children, n.ID)
	next.nodes[n.ID] = n
	next.nodes[parentID] = p
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// WithNodeRemoved detaches a node and its whole subtree and returns the new
// snapshot. Removing the root, or the last child of a branch, is rejected.
func (t *RiskTree) WithNodeRemoved(id NodeID) (*RiskTree, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, id, t.ID)
	}
	if id == t.Root {
		return nil, fmt.Errorf("%w: cannot remove root %q", ErrInconsistentTree, id)
	}
	parent := t.nodes[n.Parent]
	if len(parent.Children) == 1 {
		return nil, fmt.Errorf("%w: removing %q would leave branch %q childless", ErrInconsistentTree, id, parent.ID)
	}

	next := t.clone()
	p := copyNode(parent)
	p.Children = removeID(p.Children, id)
	next.nodes[p.ID] = p
	for _, sub := range t.subtree(id) {
		delete(next.nodes, sub)
	}
	return next, nil
}

// WithNodeMoved reparents a node (with its subtree) under newParentID and
// returns the new snapshot. Moving a node under its own descendant would
// create a cycle and is rejected; the depth bound is re-checked.
func (t *RiskTree) WithNodeMoved(id NodeID, newParentID NodeID) (*RiskTree, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q in tree %q", ErrNodeNotFound, id, t.ID)
	}
	newParent, ok := t.nodes[newParentID]
	if !ok {
		return nil, fmt.Errorf("%w: parent %q in tree %q", ErrNodeNotFound, newParentID, t.ID)
	}
	if id == t.Root {
		return nil, fmt.Errorf("%w: cannot move root %q", ErrInconsistentTree, id)
	}
	if newParent.Leaf {
		return nil, fmt.Errorf("%w: new parent %q is a leaf", ErrInconsistentTree, newParentID)
	}
	if n.Parent == newParentID {
		return nil, fmt.Errorf("%w: %q is already a child of %q", ErrInconsistentTree, id, newParentID)
	}
	for _, sub := range t.subtree(id) {
		if sub == newParentID {
			return nil, fmt.Errorf("%w: moving %q under its descendant %q", ErrInconsistentTree, id, newParentID)
		}
	}
	oldParent := t.nodes[n.Parent]
	if len(oldParent.Children) == 1 {
		return nil, fmt.Errorf("%w: moving %q would leave branch %q childless", ErrInconsistentTree, id, oldParent.ID)
	}

	next := t.clone()
	op := copyNode(oldParent)
	op.Children = removeID(op.Children, id)
	next.nodes[op.ID] = op
	np := copyNode(newParent)
	np.Children = append(np.Children, id)
	next.nodes[np.ID] = np
	moved := copyNode(n)
	moved.Parent = newParentID
	next.nodes[id] = moved
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// subtree returns id plus every descendant, preorder.
func (t *RiskTree) subtree(id NodeID) []NodeID {
	out := []NodeID{id}
	for _, c := range t.Children(id) {
		out = append(out, t.subtree(c)...)
	}
	return out
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
