package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce_NearestRank_100Samples(t *testing.T) {
	// GIVEN samples 1..100 in scrambled order
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64((i*37)%100 + 1)
	}

	// WHEN reduced
	res, err := Reduce("t", "n", 1, samples)
	require.NoError(t, err)

	// THEN nearest-rank puts p50 at rank 50 and p99 at rank 99
	assert.Equal(t, 50.0, res.Quantiles["p50"])
	assert.Equal(t, 90.0, res.Quantiles["p90"])
	assert.Equal(t, 95.0, res.Quantiles["p95"])
	assert.Equal(t, 99.0, res.Quantiles["p99"])
}

func TestReduce_NearestRank_SmallN_RoundsUp(t *testing.T) {
	// With 3 samples, p50 is rank ceil(1.5)=2, p99 is rank ceil(2.97)=3.
	res, err := Reduce("t", "n", 1, []float64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.Quantiles["p50"])
	assert.Equal(t, 30.0, res.Quantiles["p99"])
}

func TestReduce_ExceedanceCurve_Monotone(t *testing.T) {
	tree := newStochasticTree(t)
	ts, err := NewEngine(testConfig()).Run(context.Background(), tree, RunSpec{NTrials: 1000, Parallelism: 4, Seed: 7})
	require.NoError(t, err)
	samples, _ := ts.NodeSamples("root")

	res, err := Reduce(tree.ID, "root", tree.Version, samples)
	require.NoError(t, err)

	require.NotEmpty(t, res.Exceedance)
	assert.Equal(t, 1.0, res.Exceedance[0].Probability, "smallest threshold is exceeded by every trial")
	for i := 1; i < len(res.Exceedance); i++ {
		prev, cur := res.Exceedance[i-1], res.Exceedance[i]
		if cur.Loss <= prev.Loss {
			t.Fatalf("thresholds not ascending at %d: %f then %f", i, prev.Loss, cur.Loss)
		}
		if cur.Probability > prev.Probability {
			t.Fatalf("probability increased at %d: %f then %f", i, prev.Probability, cur.Probability)
		}
	}
}

func TestReduce_ExceedanceCurve_TiesCollapse(t *testing.T) {
	// GIVEN duplicate sample values
	res, err := Reduce("t", "n", 1, []float64{5, 5, 5, 10})
	require.NoError(t, err)

	// THEN each distinct value appears once with its >= count
	require.Len(t, res.Exceedance, 2)
	assert.Equal(t, CurvePoint{Loss: 5, Probability: 1.0}, res.Exceedance[0])
	assert.Equal(t, CurvePoint{Loss: 10, Probability: 0.25}, res.Exceedance[1])
}

func TestReduce_Deterministic(t *testing.T) {
	samples := []float64{9, 1, 4, 4, 7, 2}
	a, err := Reduce("t", "n", 3, samples)
	require.NoError(t, err)
	b, err := Reduce("t", "n", 3, samples)
	require.NoError(t, err)
	assert.Equal(t, a.Quantiles, b.Quantiles)
	assert.Equal(t, a.Exceedance, b.Exceedance)
}

func TestReduce_EmptySamples_Fails(t *testing.T) {
	_, err := Reduce("t", "n", 1, nil)
	assert.ErrorIs(t, err, ErrParameterOutOfRange)
}
