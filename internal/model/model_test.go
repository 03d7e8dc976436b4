package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		InputSize:    3,
		HiddenSize:   8,
		OutputSize:   2,
		Layers:       2,
		Dropout:      0.2,
		LearningRate: 0.005,
	}
}

func testWindow(seed int64, length, width int) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	seq := make([][]float64, length)
	for t := range seq {
		row := make([]float64, width)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		seq[t] = row
	}
	return seq
}

func TestPredict_DeterministicInEvalMode(t *testing.T) {
	m := New(testConfig(), 42)
	m.SetTraining(false)
	seq := testWindow(1, 10, 3)

	a := m.Predict(seq)
	b := m.Predict(seq)
	assert.Equal(t, a, b)

	// Advancing the RNG must not matter while all dropout is inactive
	m.Reseed(99)
	c := m.Predict(seq)
	assert.Equal(t, a, c)
}

func TestSample_ReproducibleUnderFixedSeed(t *testing.T) {
	m := New(testConfig(), 42)
	seq := testWindow(2, 10, 3)

	m.Reseed(7)
	mean1, std1 := Sample(m, seq, 20)
	m.Reseed(7)
	mean2, std2 := Sample(m, seq, 20)

	assert.Equal(t, mean1, mean2)
	assert.Equal(t, std1, std2)
	for j := range std1 {
		assert.GreaterOrEqual(t, std1[j], 0.0)
	}
}

func TestSample_RestoresModeFlags(t *testing.T) {
	m := New(testConfig(), 42)
	m.SetTraining(true)
	m.MC.Active = false

	Sample(m, testWindow(3, 10, 3), 5)

	assert.True(t, m.training)
	assert.False(t, m.MC.Active)
}

func TestDropoutMask_InactiveIsPassThrough(t *testing.T) {
	d := &Dropout{P: 0.5}
	rng := rand.New(rand.NewSource(1))

	assert.Nil(t, d.mask(rng, 16, false))

	d.Active = true
	m := d.mask(rng, 256, false)
	require.NotNil(t, m)

	zeros := 0
	for _, v := range m {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, v, 1e-12)
		}
	}
	assert.Greater(t, zeros, 0)
	assert.Less(t, zeros, 256)
}

func TestTraining_ReducesLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Dropout = 0 // deterministic trajectory
	m := New(cfg, 42)
	m.SetTraining(true)

	batch := [][][]float64{
		testWindow(10, 8, 3),
		testWindow(11, 8, 3),
	}
	targets := [][]float64{{0.5, -0.2}, {-0.1, 0.3}}

	mse := func(preds [][]float64) (float64, [][]float64) {
		var loss float64
		grads := make([][]float64, len(preds))
		n := float64(len(preds) * len(preds[0]))
		for i, p := range preds {
			g := make([]float64, len(p))
			for j, v := range p {
				d := v - targets[i][j]
				loss += d * d / n
				g[j] = 2 * d / n
			}
			grads[i] = g
		}
		return loss, grads
	}

	preds, _ := m.ForwardBatch(batch)
	first, _ := mse(preds)

	var last float64
	for epoch := 0; epoch < 40; epoch++ {
		preds, cache := m.ForwardBatch(batch)
		loss, grads := mse(preds)
		m.Backward(cache, grads)
		m.Step()
		last = loss
	}

	assert.Less(t, last, first)
	assert.False(t, math.IsNaN(last))
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Dropout = 0
	m := New(cfg, 42)
	m.SetTraining(false)
	seq := testWindow(4, 10, 3)

	before := m.Predict(seq)
	snap := m.Snapshot()

	// Mutate parameters with one training update
	m.SetTraining(true)
	preds, cache := m.ForwardBatch([][][]float64{seq})
	grads := [][]float64{make([]float64, len(preds[0]))}
	for j := range grads[0] {
		grads[0][j] = 1
	}
	m.Backward(cache, grads)
	m.Step()

	m.SetTraining(false)
	assert.NotEqual(t, before, m.Predict(seq))

	m.Restore(snap)
	assert.Equal(t, before, m.Predict(seq))
}
