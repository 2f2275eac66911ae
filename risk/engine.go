package risk

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunSpec is the request for one simulation run.
type RunSpec struct {
	NTrials     int   // number of Monte Carlo trials
	Parallelism int   // max trials executing concurrently within this run
	Seed        int64 // master seed; trials derive their own streams from it
}

// TrialOutcome is the result of a single trial: the sampled (leaves) or
// aggregated (branches) loss for every node in the tree.
type TrialOutcome struct {
	Trial  int
	Losses map[NodeID]float64
}

// TrialSet holds the completed outcomes of a run, organized per node so the
// aggregator can reduce one node without touching the rest.
type TrialSet struct {
	NTrials int

	order   []NodeID            // postorder used during the run
	samples map[NodeID][]float64 // per node, indexed by trial
}

// NodeSamples returns the per-trial losses for one node, indexed by trial.
// The slice is shared; callers must copy before sorting or mutating.
func (ts *TrialSet) NodeSamples(id NodeID) ([]float64, bool) {
	s, ok := ts.samples[id]
	return s, ok
}

// Outcome reconstructs the full TrialOutcome for one trial index.
func (ts *TrialSet) Outcome(trial int) TrialOutcome {
	losses := make(map[NodeID]float64, len(ts.order))
	for _, id := range ts.order {
		losses[id] = ts.samples[id][trial]
	}
	return TrialOutcome{Trial: trial, Losses: losses}
}

// Engine runs Monte Carlo trials over immutable tree snapshots.
//
// Trials are embarrassingly parallel: each trial samples every leaf from its
// own derived seed and aggregates bottom-up into a private slice, so no state
// is shared between in-flight trials. Results are combined only after the
// whole batch joins, which is what makes the output independent of the
// parallelism level.
type Engine struct {
	cfg Config
	log *logrus.Entry
}

// NewEngine creates an Engine enforcing the limits in cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, log: logrus.WithField("component", "engine")}
}

// Run executes spec.NTrials independent trials over the snapshot and returns
// the per-node trial outcomes.
//
// Bounds are checked before any trial starts: a spec exceeding MaxNTrials or
// MaxParallelism fails with ErrParameterOutOfRange and consumes nothing.
// Cancelling ctx stops dispatch of un-started trials promptly and discards
// completed ones; partial results are never returned.
func (e *Engine) Run(ctx context.Context, tree *RiskTree, spec RunSpec) (*TrialSet, error) {
	if spec.NTrials <= 0 || spec.NTrials > e.cfg.MaxNTrials {
		return nil, fmt.Errorf("%w: nTrials=%d, want 1..%d", ErrParameterOutOfRange, spec.NTrials, e.cfg.MaxNTrials)
	}
	if spec.Parallelism <= 0 || spec.Parallelism > e.cfg.MaxParallelism {
		return nil, fmt.Errorf("%w: parallelism=%d, want 1..%d", ErrParameterOutOfRange, spec.Parallelism, e.cfg.MaxParallelism)
	}

	key := NewSimulationKey(spec.Seed)
	order := tree.postorder()

	// Per-leaf seed streams are fixed up front so every trial derives from
	// the same material regardless of which worker runs it.
	leafSeeds := make(map[NodeID]int64, len(order))
	for _, id := range order {
		if tree.IsLeaf(id) {
			leafSeeds[id] = key.ForNode(id)
		}
	}

	e.log.Debugf("run start: tree=%s version=%d trials=%d parallelism=%d", tree.ID, tree.Version, spec.NTrials, spec.Parallelism)

	// results[trial][i] is the loss of order[i] in that trial. Each worker
	// writes only its own trial's slot.
	results := make([][]float64, spec.NTrials)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.Parallelism)
	for trial := 0; trial < spec.NTrials; trial++ {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := runTrial(tree, order, leafSeeds, trial)
			if err != nil {
				return fmt.Errorf("trial %d: %w", trial, err)
			}
			results[trial] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Join barrier passed; transpose into per-node sample vectors.
	ts := &TrialSet{
		NTrials: spec.NTrials,
		order:   order,
		samples: make(map[NodeID][]float64, len(order)),
	}
	for i, id := range order {
		col := make([]float64, spec.NTrials)
		for trial := range results {
			col[trial] = results[trial][i]
		}
		ts.samples[id] = col
	}
	e.log.Debugf("run done: tree=%s version=%d trials=%d", tree.ID, tree.Version, spec.NTrials)
	return ts, nil
}

// runTrial samples every leaf and aggregates bottom-up in postorder. The
// returned row is indexed like order. Self-contained: reads only the
// immutable snapshot and the precomputed seeds.
func runTrial(tree *RiskTree, order []NodeID, leafSeeds map[NodeID]int64, trial int) ([]float64, error) {
	row := make([]float64, len(order))
	byID := make(map[NodeID]float64, len(order))
	for i, id := range order {
		node, _ := tree.Node(id)
		var loss float64
		if node.Leaf {
			v, err := Sample(*node.Dist, leafSeeds[id], trial)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", id, err)
			}
			loss = v
		} else {
			loss = combineChildren(node, byID)
		}
		row[i] = loss
		byID[id] = loss
	}
	return row, nil
}

// combineChildren applies the branch's combine rule to its children's losses
// for the current trial. Postorder guarantees the children are present.
func combineChildren(node *RiskNode, byID map[NodeID]float64) float64 {
	switch node.Combine {
	case CombineMax:
		var m float64
		for i, c := range node.Children {
			v := byID[c]
			if i == 0 || v > m {
				m = v
			}
		}
		return m
	default: // CombineSum and the empty rule
		var sum float64
		for _, c := range node.Children {
			sum += byID[c]
		}
		return sum
	}
}
