package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskTree_Traversal(t *testing.T) {
	tree := newTestTree(t)

	assert.Equal(t, []NodeID{"A", "B"}, tree.Children("R"))
	assert.True(t, tree.IsLeaf("A1"))
	assert.False(t, tree.IsLeaf("A"))

	parent, ok := tree.Parent("A1")
	require.True(t, ok)
	assert.Equal(t, NodeID("A"), parent)

	_, ok = tree.Parent("R")
	assert.False(t, ok, "root must have no parent")
}

func TestRiskTree_Ancestors_ParentToRoot(t *testing.T) {
	tree := newTestTree(t)

	assert.Equal(t, []NodeID{"A", "R"}, tree.Ancestors("A1"))
	assert.Equal(t, []NodeID{"R"}, tree.Ancestors("B"))
	assert.Empty(t, tree.Ancestors("R"))
}

func TestNewRiskTree_DuplicateID_Fails(t *testing.T) {
	nodes := []*RiskNode{
		{ID: "R", Children: []NodeID{"X"}},
		{ID: "X", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
		{ID: "X", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 2}},
	}
	_, err := NewRiskTree("t", "dup", "R", nodes, 8)
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestNewRiskTree_BranchWithDistribution_Fails(t *testing.T) {
	nodes := []*RiskNode{
		{ID: "R", Children: []NodeID{"X"}, Dist: &Distribution{Kind: DistPoint, Value: 1}},
		{ID: "X", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
	}
	_, err := NewRiskTree("t", "bad", "R", nodes, 8)
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestNewRiskTree_LeafWithoutDistribution_Fails(t *testing.T) {
	nodes := []*RiskNode{
		{ID: "R", Children: []NodeID{"X"}},
		{ID: "X", Parent: "R", Leaf: true},
	}
	_, err := NewRiskTree("t", "bad", "R", nodes, 8)
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestNewRiskTree_UnreachableNode_Fails(t *testing.T) {
	// GIVEN an arena with a node no child list mentions
	nodes := []*RiskNode{
		{ID: "R", Children: []NodeID{"X"}},
		{ID: "X", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
		{ID: "orphan", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
	}

	// WHEN the tree is constructed
	_, err := NewRiskTree("t", "orphan", "R", nodes, 8)

	// THEN validation rejects it
	if !errors.Is(err, ErrInconsistentTree) {
		t.Errorf("err = %v, want ErrInconsistentTree", err)
	}
}

func TestNewRiskTree_TooDeep_Fails(t *testing.T) {
	// GIVEN a 4-level chain and a depth limit of 3
	nodes := []*RiskNode{
		{ID: "a", Children: []NodeID{"b"}},
		{ID: "b", Parent: "a", Children: []NodeID{"c"}},
		{ID: "c", Parent: "b", Children: []NodeID{"d"}},
		{ID: "d", Parent: "c", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 1}},
	}
	_, err := NewRiskTree("t", "deep", "a", nodes, 3)
	if !errors.Is(err, ErrTreeTooDeep) {
		t.Errorf("err = %v, want ErrTreeTooDeep", err)
	}
}

func TestRiskTree_Version_StartsAtOne(t *testing.T) {
	tree := newTestTree(t)
	assert.Equal(t, int64(1), tree.Version)
}
