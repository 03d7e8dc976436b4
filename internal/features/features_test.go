package features

import (
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/volcast/internal/panel"
)

func syntheticPanel(rows int, assets ...string) *panel.Panel {
	p := &panel.Panel{
		Assets: assets,
		Close:  make(map[string][]float64),
		Volume: make(map[string][]float64),
	}
	for i := 0; i < rows; i++ {
		p.Dates = append(p.Dates, fmt.Sprintf("2024-01-%02d", i+1))
	}
	for k, asset := range assets {
		closes := make([]float64, rows)
		volumes := make([]float64, rows)
		for i := 0; i < rows; i++ {
			// Deterministic oscillating price path, distinct per asset
			closes[i] = 100 + float64(k+1)*5*math.Sin(float64(i)/3)
			volumes[i] = 1000 + float64((i*(k+7))%50)
		}
		p.Close[asset] = closes
		p.Volume[asset] = volumes
	}
	return p
}

func TestBuild_ShapesAndAlignment(t *testing.T) {
	p := syntheticPanel(60, "AAA", "BBB")
	b := NewBuilder(7, zerolog.Nop())

	set, err := b.Build(p)
	require.NoError(t, err)

	rows, cols := set.Features.Dims()
	_, tCols := set.Targets.Dims()
	assert.Equal(t, 6, cols)
	assert.Equal(t, 2, tCols)
	assert.Equal(t, rows, set.Rows())
	assert.Len(t, set.Dates, rows)

	// 60 panel rows -> 59 return rows; the first row lacks an EWM std and
	// the last 7 lack a forward target, so 51 rows survive alignment.
	assert.Equal(t, 51, rows)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.False(t, math.IsNaN(set.Features.At(i, j)), "feature NaN at (%d,%d)", i, j)
		}
		for j := 0; j < tCols; j++ {
			assert.False(t, math.IsNaN(set.Targets.At(i, j)), "target NaN at (%d,%d)", i, j)
		}
	}
}

func TestBuild_TargetMatchesForwardWindow(t *testing.T) {
	p := syntheticPanel(60, "AAA")
	b := NewBuilder(7, zerolog.Nop())

	set, err := b.Build(p)
	require.NoError(t, err)

	r := p.LogReturns()["AAA"]
	// First aligned row corresponds to return index 1 (index 0 is dropped
	// for its undefined EWM std). Its target covers r[2:9].
	want := stat.StdDev(r[2:9], nil)
	assert.InDelta(t, want, set.Targets.At(0, 0), 1e-12)
}

func TestAlign_Idempotent(t *testing.T) {
	p := syntheticPanel(60, "AAA", "BBB")
	b := NewBuilder(7, zerolog.Nop())

	set, err := b.Build(p)
	require.NoError(t, err)

	again := align(set.Dates, set.Assets, set.Features, set.Targets)
	assert.Equal(t, set.Rows(), again.Rows())
	assert.Equal(t, set.Dates, again.Dates)
	assert.InDelta(t, set.Features.At(0, 0), again.Features.At(0, 0), 0)
}

func TestBuild_ConstantVolume(t *testing.T) {
	p := syntheticPanel(60, "AAA")
	for i := range p.Volume["AAA"] {
		p.Volume["AAA"][i] = 5000
	}

	set, err := NewBuilder(7, zerolog.Nop()).Build(p)
	require.NoError(t, err)

	// Log-difference of a constant volume is all zeros; the liquidity
	// feature must be exactly zero, never NaN.
	a := 1
	for i := 0; i < set.Rows(); i++ {
		assert.Equal(t, 0.0, set.Features.At(i, 2*a), "row %d", i)
	}
}

func TestBuild_TooShort(t *testing.T) {
	p := syntheticPanel(5, "AAA")
	_, err := NewBuilder(7, zerolog.Nop()).Build(p)
	assert.Error(t, err)
}

func TestEWMMean_ConvergesToConstant(t *testing.T) {
	xs := make([]float64, 50)
	for i := range xs {
		xs[i] = 3.5
	}
	out := EWMMean(xs, 7)
	for _, v := range out {
		assert.InDelta(t, 3.5, v, 1e-12)
	}
}

func TestEWMStd_FirstObservationUndefined(t *testing.T) {
	out := EWMStd([]float64{1, 2, 3, 4}, 7)
	assert.True(t, math.IsNaN(out[0]))
	for _, v := range out[1:] {
		assert.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestEWMStd_ConstantSeriesIsZeroAfterFirst(t *testing.T) {
	xs := []float64{2, 2, 2, 2, 2}
	out := EWMStd(xs, 7)
	for _, v := range out[1:] {
		assert.InDelta(t, 0.0, v, 1e-12)
	}
}
