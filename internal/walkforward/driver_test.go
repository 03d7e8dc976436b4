package walkforward

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/volcast/internal/config"
	"github.com/aristath/volcast/internal/dataset"
	"github.com/aristath/volcast/internal/features"
	"github.com/aristath/volcast/internal/panel"
	"github.com/aristath/volcast/internal/results"
)

// deterministicPanel builds a 3-asset panel with known non-random price
// paths: two oscillating series and one trending series.
func deterministicPanel(days int) *panel.Panel {
	p := &panel.Panel{
		Assets: []string{"AAA", "BBB", "CCC"},
		Close:  make(map[string][]float64),
		Volume: make(map[string][]float64),
	}
	for i := 0; i < days; i++ {
		p.Dates = append(p.Dates, fmt.Sprintf("2024-%02d-%02d", i/28+1, i%28+1))
	}
	for k, asset := range p.Assets {
		closes := make([]float64, days)
		volumes := make([]float64, days)
		for i := 0; i < days; i++ {
			switch k {
			case 0:
				closes[i] = 100 + 8*math.Sin(float64(i)/4)
			case 1:
				closes[i] = 50 + 3*math.Cos(float64(i)/6) + float64(i)*0.05
			default:
				closes[i] = 200 + float64(i)*0.3 + 5*math.Sin(float64(i)/9)
			}
			volumes[i] = 1000 + float64((i*(k+3))%40)
		}
		p.Close[asset] = closes
		p.Volume[asset] = volumes
	}
	return p
}

func testSimConfig() config.SimulationConfig {
	return config.SimulationConfig{
		Horizon:        7,
		SequenceLength: 35,
		TrainFraction:  0.8,
		BatchSize:      16,
		MaxEpochs:      3,
		Patience:       2,
		LearningRate:   0.005,
		HiddenSize:     8,
		Layers:         1,
		Dropout:        0.2,
		MCSamples:      5,
		DirLossWeight:  0.1,
		Seed:           42,
	}
}

func buildInputs(t *testing.T, p *panel.Panel, cfg config.SimulationConfig) ([]dataset.Window, [][]float64, []string) {
	t.Helper()

	set, err := features.NewBuilder(cfg.Horizon, zerolog.Nop()).Build(p)
	require.NoError(t, err)

	windows, err := dataset.NewWindower(cfg.SequenceLength, zerolog.Nop()).Slice(set)
	require.NoError(t, err)

	returns := p.LogReturns()
	dates := p.Dates[1:]
	history := make([][]float64, len(dates))
	for i := range history {
		row := make([]float64, len(p.Assets))
		for j, asset := range p.Assets {
			row[j] = returns[asset][i]
		}
		history[i] = row
	}
	return windows, history, dates
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testSimConfig()
	p := deterministicPanel(120)
	windows, history, dates := buildInputs(t, p, cfg)

	n := len(windows)
	wantSteps := n - int(math.Floor(0.8*float64(n))) - cfg.Horizon
	require.Greater(t, wantSteps, 0)

	d := New(cfg, zerolog.Nop())
	steps, err := d.Run(context.Background(), windows, history, dates)
	require.NoError(t, err)
	require.Len(t, steps, wantSteps)

	for i, s := range steps {
		assert.Equal(t, i, s.Step)
		require.Len(t, s.MAE, 3)
		require.Len(t, s.Weights, 3)

		var weightSum float64
		for j := 0; j < 3; j++ {
			assert.GreaterOrEqual(t, s.MAE[j], 0.0)
			assert.GreaterOrEqual(t, s.RMSE[j], 0.0)
			weightSum += s.Weights[j]
		}
		assert.InDelta(t, 1.0, weightSum, 1e-6)

		assert.GreaterOrEqual(t, s.PredictedPortfolioVol, 0.0)
		assert.GreaterOrEqual(t, s.TruePortfolioVol, 0.0)
		assert.False(t, math.IsNaN(s.PredictedPortfolioVol))

		if i < cfg.Horizon {
			assert.Nil(t, s.DirAccuracy, "step %d", i)
		} else {
			require.Len(t, s.DirAccuracy, 3, "step %d", i)
			for _, v := range s.DirAccuracy {
				assert.Contains(t, []float64{0, 1}, v)
			}
		}
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	cfg := testSimConfig()
	p := deterministicPanel(120)
	windows, history, dates := buildInputs(t, p, cfg)

	d := New(cfg, zerolog.Nop())
	var seen []int
	d.OnStep(func(s results.StepResult) { seen = append(seen, s.Step) })

	steps, err := d.Run(context.Background(), windows, history, dates)
	require.NoError(t, err)
	require.Len(t, seen, len(steps))
	for i, s := range seen {
		assert.Equal(t, i, s)
	}
}

func TestRun_Reproducible(t *testing.T) {
	cfg := testSimConfig()
	p := deterministicPanel(120)
	windows, history, dates := buildInputs(t, p, cfg)

	first, err := New(cfg, zerolog.Nop()).Run(context.Background(), windows, history, dates)
	require.NoError(t, err)
	second, err := New(cfg, zerolog.Nop()).Run(context.Background(), windows, history, dates)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Predicted, second[i].Predicted)
		assert.Equal(t, first[i].PredStd, second[i].PredStd)
		assert.Equal(t, first[i].BestLoss, second[i].BestLoss)
	}
}

func TestRun_CancelAtStepBoundary(t *testing.T) {
	cfg := testSimConfig()
	p := deterministicPanel(120)
	windows, history, dates := buildInputs(t, p, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, err := New(cfg, zerolog.Nop()).Run(ctx, windows, history, dates)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, steps)
}

func TestRun_TooFewWindowsIsFatal(t *testing.T) {
	cfg := testSimConfig()
	p := deterministicPanel(120)
	windows, history, dates := buildInputs(t, p, cfg)

	_, err := New(cfg, zerolog.Nop()).Run(context.Background(), windows[:10], history, dates)
	assert.Error(t, err)

	_, err = New(cfg, zerolog.Nop()).Run(context.Background(), nil, history, dates)
	assert.Error(t, err)
}
