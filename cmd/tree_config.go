package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/risk-sim/risk-sim/risk"
	"github.com/risk-sim/risk-sim/risk/store"
)

// TreeFile is the YAML schema for a risk tree definition:
//
//	name: Enterprise Risk
//	root: root
//	nodes:
//	  - id: root
//	    name: Enterprise
//	    children: [cyber, ops]
//	  - id: cyber
//	    name: Cyber
//	    parent: root
//	    leaf: true
//	    dist: {kind: lognormal, mu: 10, sigma: 1.5}
type TreeFile struct {
	Name  string           `yaml:"name"`
	Root  risk.NodeID      `yaml:"root"`
	Nodes []*risk.RiskNode `yaml:"nodes"`
}

// LoadTreeFile parses a YAML tree definition into a validated version-1
// snapshot with a freshly minted tree id.
func LoadTreeFile(path string, maxDepth int) (*risk.RiskTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree file: %w", err)
	}
	var tf TreeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing tree file: %w", err)
	}
	if tf.Root == "" {
		return nil, fmt.Errorf("tree file %q: root not set", path)
	}
	tree, err := risk.NewRiskTree(store.NewTreeID(), tf.Name, tf.Root, tf.Nodes, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("tree file %q: %w", path, err)
	}
	return tree, nil
}
