package risk

import (
	"fmt"
	"math"
	randv2 "math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// DistributionKind names a supported loss distribution family.
type DistributionKind string

const (
	// DistPoint is a point mass: every trial loses exactly Value.
	DistPoint DistributionKind = "point"
	// DistLognormal draws from Lognormal(Mu, Sigma).
	DistLognormal DistributionKind = "lognormal"
	// DistUniform draws uniformly from [Min, Max).
	DistUniform DistributionKind = "uniform"
	// DistDiscrete draws from an explicit loss/probability table.
	DistDiscrete DistributionKind = "discrete"
)

// TableEntry is one row of a discrete loss distribution.
type TableEntry struct {
	Loss        float64 `yaml:"loss" json:"loss"`
	Probability float64 `yaml:"probability" json:"probability"`
}

// Distribution is the per-leaf loss model. Only the fields of the named
// Kind are meaningful; the rest stay zero.
type Distribution struct {
	Kind DistributionKind `yaml:"kind" json:"kind"`

	// Point mass.
	Value float64 `yaml:"value,omitempty" json:"value,omitempty"`

	// Lognormal parameters (of the underlying normal).
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`

	// Uniform bounds.
	Min float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Discrete table. Probabilities must sum to 1.
	Table []TableEntry `yaml:"table,omitempty" json:"table,omitempty"`
}

// Validate checks the parameters of the declared kind. An unknown kind
// returns ErrUnsupportedDistributionKind so that bad trees are rejected at
// construction rather than mid-simulation.
func (d Distribution) Validate() error {
	switch d.Kind {
	case DistPoint:
		if d.Value < 0 {
			return fmt.Errorf("%w: point loss must be non-negative, got %f", ErrParameterOutOfRange, d.Value)
		}
	case DistLognormal:
		if d.Sigma <= 0 {
			return fmt.Errorf("%w: lognormal sigma must be positive, got %f", ErrParameterOutOfRange, d.Sigma)
		}
	case DistUniform:
		if d.Max < d.Min {
			return fmt.Errorf("%w: uniform bounds inverted: min=%f max=%f", ErrParameterOutOfRange, d.Min, d.Max)
		}
	case DistDiscrete:
		if len(d.Table) == 0 {
			return fmt.Errorf("%w: discrete table is empty", ErrParameterOutOfRange)
		}
		var sum float64
		for i, e := range d.Table {
			if e.Probability < 0 {
				return fmt.Errorf("%w: discrete table row %d: negative probability %f", ErrParameterOutOfRange, i, e.Probability)
			}
			sum += e.Probability
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("%w: discrete table probabilities sum to %f, want 1", ErrParameterOutOfRange, sum)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDistributionKind, d.Kind)
	}
	return nil
}

// Sample draws the loss for one trial. It is a pure function of its inputs:
// the same (distribution, seed, trialIndex) always yields the same value.
// Each call seeds a fresh PCG generator from (seed, mix64(trialIndex)), so
// trials are independent and no state is shared between concurrent calls.
func Sample(d Distribution, seed int64, trialIndex int) (float64, error) {
	switch d.Kind {
	case DistPoint:
		return d.Value, nil
	case DistLognormal:
		src := randv2.NewPCG(uint64(seed), mix64(uint64(trialIndex)))
		ln := distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma, Src: src}
		return ln.Rand(), nil
	case DistUniform:
		src := randv2.NewPCG(uint64(seed), mix64(uint64(trialIndex)))
		u := distuv.Uniform{Min: d.Min, Max: d.Max, Src: src}
		return u.Rand(), nil
	case DistDiscrete:
		src := randv2.NewPCG(uint64(seed), mix64(uint64(trialIndex)))
		u := randv2.New(src).Float64()
		var cum float64
		for _, e := range d.Table {
			cum += e.Probability
			if u < cum {
				return e.Loss, nil
			}
		}
		// Rounding can leave u just above the cumulative sum.
		return d.Table[len(d.Table)-1].Loss, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDistributionKind, d.Kind)
	}
}
