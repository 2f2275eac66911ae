package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithNodeEdit_BumpsVersionAndPreservesOld(t *testing.T) {
	// GIVEN a version-1 tree
	tree := newTestTree(t)

	// WHEN a leaf's distribution is edited
	next, err := tree.WithNodeEdit("A1", NodeParams{Dist: &Distribution{Kind: DistPoint, Value: 30}})
	require.NoError(t, err)

	// THEN the new snapshot is at version 2 with the new parameters
	assert.Equal(t, int64(2), next.Version)
	n, _ := next.Node("A1")
	assert.Equal(t, 30.0, n.Dist.Value)

	// AND the old snapshot is untouched (snapshot isolation for in-flight runs)
	assert.Equal(t, int64(1), tree.Version)
	old, _ := tree.Node("A1")
	assert.Equal(t, 3.0, old.Dist.Value)
}

func TestWithNodeEdit_UnknownNode_Fails(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.WithNodeEdit("nope", NodeParams{})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestWithNodeEdit_DistributionOnBranch_Fails(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.WithNodeEdit("A", NodeParams{Dist: &Distribution{Kind: DistPoint, Value: 1}})
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestWithNodeAdded_SharesUntouchedNodes(t *testing.T) {
	tree := newTestTree(t)

	next, err := tree.WithNodeAdded("A", &RiskNode{
		ID: "A2", Name: "Phishing", Leaf: true,
		Dist: &Distribution{Kind: DistPoint, Value: 7},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, []NodeID{"A1", "A2"}, next.Children("A"))
	assert.Equal(t, []NodeID{"A1"}, tree.Children("A"))

	// Structural sharing: nodes outside the edited path are the same objects.
	oldB, _ := tree.Node("B")
	newB, _ := next.Node("B")
	assert.Same(t, oldB, newB)
}

func TestWithNodeMoved_BeyondMaxDepth_Fails(t *testing.T) {
	// GIVEN two depth-3 subtrees at a depth limit of 3
	nodes := []*RiskNode{
		{ID: "r", Children: []NodeID{"x", "y"}},
		{ID: "x", Parent: "r", Children: []NodeID{"x1"}},
		{ID: "x1", Parent: "x", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
		{ID: "y", Parent: "r", Children: []NodeID{"y1"}},
		{ID: "y1", Parent: "y", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 2}},
	}
	tree, err := NewRiskTree("t", "deep", "r", nodes, 3)
	require.NoError(t, err)

	// WHEN subtree x is moved under y, pushing x1 to depth 4
	_, err = tree.WithNodeMoved("x", "y")

	// THEN the edit fails and the original snapshot is unchanged
	if !errors.Is(err, ErrTreeTooDeep) {
		t.Errorf("err = %v, want ErrTreeTooDeep", err)
	}
	assert.Equal(t, int64(1), tree.Version)
}

func TestWithNodeRemoved_DropsSubtree(t *testing.T) {
	tree := newTestTree(t)

	next, err := tree.WithNodeRemoved("A")
	require.NoError(t, err)

	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, 2, next.Len(), "A and A1 both removed")
	_, ok := next.Node("A1")
	assert.False(t, ok)
	assert.Equal(t, []NodeID{"B"}, next.Children("R"))
}

func TestWithNodeRemoved_Root_Fails(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.WithNodeRemoved("R")
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestWithNodeMoved_Reparents(t *testing.T) {
	tree := newTestTree(t)

	// Move B under A: R -> A -> {A1, B}
	next, err := tree.WithNodeMoved("B", "A")
	require.NoError(t, err)

	assert.Equal(t, []NodeID{"A1", "B"}, next.Children("A"))
	assert.Equal(t, []NodeID{"A"}, next.Children("R"))
	p, _ := next.Parent("B")
	assert.Equal(t, NodeID("A"), p)
}

func TestWithNodeMoved_UnderOwnDescendant_Fails(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.WithNodeMoved("A", "A")
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}
