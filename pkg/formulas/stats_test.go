package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	// A single observation has no spread; a NaN here would poison every
	// JSON consumer downstream
	assert.Equal(t, 0.0, StdDev([]float64{0.01}))
	// Sample std dev of {2, 4, 4, 4, 5, 5, 7, 9} is ~2.138
	assert.InDelta(t, 2.138, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
	assert.Equal(t, 0.0, Variance([]float64{3}))
	assert.InDelta(t, 2.5, Variance([]float64{1, 2, 3, 4, 5}), 1e-12)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-12)

	// Length mismatch returns 0
	assert.Equal(t, 0.0, Correlation(x, y[:3]))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, -0.005, 0.01}
	expected := StdDev(returns) * math.Sqrt(252)
	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-12)
}

func TestCalculateEMA_ShortSeriesFallsBackToMean(t *testing.T) {
	values := []float64{1, 2, 3}
	ema := CalculateEMA(values, 10)
	require.NotNil(t, ema)
	assert.InDelta(t, 2.0, *ema, 1e-12)
}

func TestCalculateEMA_Empty(t *testing.T) {
	assert.Nil(t, CalculateEMA(nil, 10))
}

func TestCalculateSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	sma := CalculateSMA(values, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 5.0, *sma, 1e-9)

	assert.Nil(t, CalculateSMA(values, 10))
}
