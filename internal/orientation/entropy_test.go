package orientation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/model"
)

func TestHistogram_MergesAcrossNorth(t *testing.T) {
	counts := Histogram([]float64{359, 1, 4.9, 355}, DefaultBins)

	require.Len(t, counts, DefaultBins)
	assert.Equal(t, 4.0, counts[0])
	for _, c := range counts[1:] {
		assert.Zero(t, c)
	}
}

func TestHistogram_BinEdges(t *testing.T) {
	counts := Histogram([]float64{5, 14.99, 15, 360}, DefaultBins)

	assert.Equal(t, 2.0, counts[1], "[5, 15) is the 10° bin")
	assert.Equal(t, 1.0, counts[2])
	assert.Equal(t, 1.0, counts[0], "360 lands in the last raw bin, which rolls to north")
}

func TestOrder_SingleAxisIsOne(t *testing.T) {
	order, err := Order(Mirror([]float64{0, 0, 180, 0}), DefaultBins)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, order, 1e-12)
}

func TestOrder_RectilinearGrid(t *testing.T) {
	var bearings []float64
	for i := 0; i < 50; i++ {
		bearings = append(bearings, 0, 90, 180, 270)
	}

	order, err := Order(Mirror(bearings), DefaultBins)
	require.NoError(t, err)

	want := 1 - math.Pow(math.Log(2)/math.Log(18), 2)
	assert.InDelta(t, want, order, 1e-9)
	assert.Greater(t, order, 0.94)
}

func TestOrder_UniformApproachesZero(t *testing.T) {
	var bearings []float64
	for i := 0; i < 3600; i++ {
		bearings = append(bearings, float64(i)/10+0.05)
	}

	order, err := Order(bearings, DefaultBins)
	require.NoError(t, err)
	assert.InDelta(t, 0, order, 1e-9)

	rng := rand.New(rand.NewPCG(1, 2))
	small := make([]float64, 100)
	large := make([]float64, 100_000)
	for i := range small {
		small[i] = rng.Float64() * 360
	}
	for i := range large {
		large[i] = rng.Float64() * 360
	}
	os, err := Order(Mirror(small), DefaultBins)
	require.NoError(t, err)
	ol, err := Order(Mirror(large), DefaultBins)
	require.NoError(t, err)
	assert.Less(t, ol, 0.01)
	assert.LessOrEqual(t, ol, os)
}

func TestOrder_BoundedForAnyInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(40)
		bearings := make([]float64, n)
		for i := range bearings {
			bearings[i] = float64(rng.IntN(8)) * 45
		}
		order, err := Order(bearings, DefaultBins)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order, 0.0)
		assert.LessOrEqual(t, order, 1.0)
	}
}

func TestOrder_EmptyIsDegenerate(t *testing.T) {
	order, err := Order(nil, DefaultBins)
	require.Error(t, err)
	assert.True(t, math.IsNaN(order))
	assert.ErrorIs(t, err, ErrNoBearings)
	assert.Equal(t, model.KindDegenerate, model.KindOf(err))
}

func TestMirror(t *testing.T) {
	assert.Equal(t, []float64{10, 190, 270, 90}, Mirror([]float64{10, math.NaN(), 270}))
	assert.Equal(t, 0.0, Reverse(180))
}
