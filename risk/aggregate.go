package risk

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Percentiles reported for every aggregate, in ascending order.
var quantileLabels = []struct {
	label string
	p     float64
}{
	{"p50", 0.50},
	{"p90", 0.90},
	{"p95", 0.95},
	{"p99", 0.99},
}

// CurvePoint is one step of a loss exceedance curve: the probability that a
// trial's loss is greater than or equal to Loss.
type CurvePoint struct {
	Loss        float64 `json:"loss"`
	Probability float64 `json:"probability"`
}

// AggregateResult is the reduced statistics for one (tree, node, version)
// triple. Immutable once built; a new tree version supersedes it rather than
// mutating it.
type AggregateResult struct {
	TreeID  TreeID `json:"tree_id"`
	NodeID  NodeID `json:"node_id"`
	Version int64  `json:"version"`
	NTrials int    `json:"n_trials"`

	// Quantiles maps percentile labels (p50, p90, p95, p99) to loss values.
	Quantiles map[string]float64 `json:"quantiles"`

	// Exceedance is the LEC as an ascending-threshold step series with
	// non-increasing probability.
	Exceedance []CurvePoint `json:"exceedance"`

	ComputedAt time.Time `json:"computed_at"`
}

// Reduce converts one node's trial losses into an AggregateResult.
//
// Quantiles use the nearest-rank method: for percentile p over n ascending
// sorted samples, the value at 1-based rank ceil(p*n). No interpolation, so
// every reported quantile is a loss that actually occurred in some trial.
//
// The exceedance curve is a step function over the distinct sample values v,
// with P(loss >= v) = count(samples >= v) / n. Sorting ascending fixes the
// order, so identical inputs always produce the identical series.
func Reduce(treeID TreeID, nodeID NodeID, version int64, samples []float64) (*AggregateResult, error) {
	n := len(samples)
	if n == 0 {
		return nil, fmt.Errorf("%w: no samples for node %q", ErrParameterOutOfRange, nodeID)
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	quantiles := make(map[string]float64, len(quantileLabels))
	for _, q := range quantileLabels {
		rank := int(math.Ceil(q.p * float64(n)))
		if rank < 1 {
			rank = 1
		}
		quantiles[q.label] = sorted[rank-1]
	}

	// Walk the sorted samples once; each distinct value opens a step whose
	// exceedance count is everything at or after its first occurrence.
	curve := make([]CurvePoint, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && sorted[i] == sorted[i-1] {
			continue
		}
		curve = append(curve, CurvePoint{
			Loss:        sorted[i],
			Probability: float64(n-i) / float64(n),
		})
	}

	return &AggregateResult{
		TreeID:     treeID,
		NodeID:     nodeID,
		Version:    version,
		NTrials:    n,
		Quantiles:  quantiles,
		Exceedance: curve,
		ComputedAt: time.Now().UTC(),
	}, nil
}
