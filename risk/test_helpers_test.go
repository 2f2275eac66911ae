package risk

import "testing"

// newTestTree builds the four-node fixture used across the package:
//
//	R (root, sum)
//	├── A (branch, sum)
//	│   └── A1 (leaf, point 3)
//	└── B (leaf, point 5)
func newTestTree(t *testing.T) *RiskTree {
	t.Helper()
	nodes := []*RiskNode{
		{ID: "R", Name: "Enterprise", Children: []NodeID{"A", "B"}},
		{ID: "A", Name: "Cyber", Parent: "R", Children: []NodeID{"A1"}},
		{ID: "A1", Name: "Breach", Parent: "A", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 3}},
		{ID: "B", Name: "Ops", Parent: "R", Leaf: true, Dist: &Distribution{Kind: DistPoint, Value: 5}},
	}
	tree, err := NewRiskTree("tree-1", "test", "R", nodes, 8)
	if err != nil {
		t.Fatalf("NewRiskTree: %v", err)
	}
	return tree
}

// newStochasticTree builds a tree whose leaves draw from non-degenerate
// distributions, for determinism and aggregation tests.
func newStochasticTree(t *testing.T) *RiskTree {
	t.Helper()
	nodes := []*RiskNode{
		{ID: "root", Name: "Enterprise", Children: []NodeID{"cyber", "ops"}},
		{ID: "cyber", Name: "Cyber", Parent: "root", Leaf: true,
			Dist: &Distribution{Kind: DistLognormal, Mu: 10, Sigma: 1.2}},
		{ID: "ops", Name: "Operations", Parent: "root", Leaf: true,
			Dist: &Distribution{Kind: DistUniform, Min: 100, Max: 5000}},
	}
	tree, err := NewRiskTree("tree-s", "stochastic", "root", nodes, 8)
	if err != nil {
		t.Fatalf("NewRiskTree: %v", err)
	}
	return tree
}

// testConfig returns small limits suitable for unit tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultNTrials = 200
	cfg.MaxNTrials = 10000
	cfg.DefaultParallelism = 4
	cfg.MaxParallelism = 16
	cfg.MaxConcurrentSimulations = 2
	cfg.MaxTreeDepth = 8
	return cfg
}
