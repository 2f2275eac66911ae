package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sim/risk-sim/risk"
)

const sampleTreeYAML = `
name: Enterprise Risk
root: root
nodes:
  - id: root
    name: Enterprise
    children: [cyber, ops]
  - id: cyber
    name: Cyber
    parent: root
    leaf: true
    dist:
      kind: lognormal
      mu: 10
      sigma: 1.5
  - id: ops
    name: Operations
    parent: root
    leaf: true
    dist:
      kind: discrete
      table:
        - {loss: 0, probability: 0.7}
        - {loss: 250000, probability: 0.3}
`

func writeTempTree(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTreeFile_ParsesAndValidates(t *testing.T) {
	path := writeTempTree(t, sampleTreeYAML)

	tree, err := LoadTreeFile(path, 8)
	require.NoError(t, err)

	assert.Equal(t, "Enterprise Risk", tree.Name)
	assert.Equal(t, risk.NodeID("root"), tree.Root)
	assert.Equal(t, int64(1), tree.Version)
	assert.Equal(t, 3, tree.Len())

	cyber, ok := tree.Node("cyber")
	require.True(t, ok)
	require.NotNil(t, cyber.Dist)
	assert.Equal(t, risk.DistLognormal, cyber.Dist.Kind)
	assert.Equal(t, 1.5, cyber.Dist.Sigma)
}

func TestLoadTreeFile_MissingRoot_Fails(t *testing.T) {
	path := writeTempTree(t, "name: broken\nnodes: []\n")
	_, err := LoadTreeFile(path, 8)
	assert.Error(t, err)
}

func TestLoadTreeFile_InvalidStructure_Fails(t *testing.T) {
	// Branch carrying a distribution must be rejected at load time.
	bad := `
name: bad
root: root
nodes:
  - id: root
    children: [leaf]
    dist: {kind: point, value: 1}
  - id: leaf
    parent: root
    leaf: true
    dist: {kind: point, value: 1}
`
	path := writeTempTree(t, bad)
	_, err := LoadTreeFile(path, 8)
	assert.ErrorIs(t, err, risk.ErrInconsistentTree)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultConfig().MaxNTrials, cfg.MaxNTrials)
	assert.Equal(t, risk.PolicyQueue, cfg.Admission)
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_n_trials: 500\ndefault_n_trials: 100\nadmission_policy: reject\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.MaxNTrials)
	assert.Equal(t, 100, cfg.DefaultNTrials)
	assert.Equal(t, risk.PolicyReject, cfg.Admission)
}

func TestLoadConfig_InvalidValues_Fail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_tree_depth: 0\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
