// Package model implements the recurrent sequence-to-vector volatility
// regressor: a multi-layer LSTM encoder with inter-layer dropout, an
// explicit Monte Carlo dropout unit on the final hidden state, a rectified
// linear activation, and a linear projection to one output per asset.
package model

import (
	"math"
	"math/rand"
)

// Config holds the model architecture and optimizer settings.
type Config struct {
	InputSize    int
	HiddenSize   int
	OutputSize   int
	Layers       int
	Dropout      float64
	LearningRate float64
}

// Model owns the trainable parameter set. The walk-forward driver holds a
// single Model for the whole run; parameters carry over between steps and
// are never reinitialized (warm starting is part of the training contract).
type Model struct {
	cfg      Config
	layers   []*lstmLayer
	headW    *param // OutputSize x HiddenSize
	headB    *param // OutputSize
	MC       *Dropout
	opt      *adam
	rng      *rand.Rand
	training bool
}

// New builds a model with weights initialized from the given seed.
func New(cfg Config, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))

	m := &Model{
		cfg:   cfg,
		MC:    &Dropout{P: cfg.Dropout},
		opt:   newAdam(cfg.LearningRate),
		rng:   rng,
		headW: newParam(cfg.OutputSize * cfg.HiddenSize),
		headB: newParam(cfg.OutputSize),
	}

	in := cfg.InputSize
	for i := 0; i < cfg.Layers; i++ {
		m.layers = append(m.layers, newLSTMLayer(in, cfg.HiddenSize, rng))
		in = cfg.HiddenSize
	}

	k := 1.0 / math.Sqrt(float64(cfg.HiddenSize))
	for i := range m.headW.val {
		m.headW.val[i] = (rng.Float64()*2 - 1) * k
	}
	for i := range m.headB.val {
		m.headB.val[i] = (rng.Float64()*2 - 1) * k
	}

	return m
}

// Reseed replaces the model's random source. The driver calls this once per
// walk-forward step with base seed + step index so every step's dropout
// draws are reproducible.
func (m *Model) Reseed(seed int64) {
	m.rng = rand.New(rand.NewSource(seed))
}

// SetTraining switches the encoder between training mode (inter-layer
// dropout active) and evaluation mode. The MC unit's Active flag is
// independent of this switch.
func (m *Model) SetTraining(training bool) {
	m.training = training
}

func (m *Model) params() []*param {
	ps := []*param{m.headW, m.headB}
	for _, l := range m.layers {
		ps = append(ps, l.params()...)
	}
	return ps
}

// sampleCache holds everything one forward pass needs for backpropagation.
type sampleCache struct {
	layerCaches []*lstmCache
	layerMasks  [][][]float64 // inter-layer dropout masks per layer, per timestep
	mcMask      []float64
	dropped     []float64 // final hidden state after the MC unit
	activated   []float64 // after ReLU
}

// forward runs one window through the network. Stochastic units draw from
// the model's RNG; with dropout inactive the pass is fully deterministic.
func (m *Model) forward(seq [][]float64, withCache bool) ([]float64, *sampleCache) {
	var cache *sampleCache
	if withCache {
		cache = &sampleCache{
			layerCaches: make([]*lstmCache, len(m.layers)),
			layerMasks:  make([][][]float64, len(m.layers)),
		}
	}

	hs := seq
	for li, layer := range m.layers {
		out, lc := layer.forward(hs, withCache)

		// Inter-layer dropout on every layer's output except the last,
		// training mode only.
		var masks [][]float64
		if li < len(m.layers)-1 && m.training && m.cfg.Dropout > 0 {
			masks = make([][]float64, len(out))
			dropped := make([][]float64, len(out))
			for t := range out {
				masks[t] = (&Dropout{P: m.cfg.Dropout}).mask(m.rng, m.cfg.HiddenSize, true)
				dropped[t] = applyMask(out[t], masks[t])
			}
			out = dropped
		}

		if withCache {
			cache.layerCaches[li] = lc
			cache.layerMasks[li] = masks
		}
		hs = out
	}

	final := hs[len(hs)-1]

	mcMask := m.MC.mask(m.rng, m.cfg.HiddenSize, m.training)
	dropped := applyMask(final, mcMask)

	activated := make([]float64, m.cfg.HiddenSize)
	for j, v := range dropped {
		if v > 0 {
			activated[j] = v
		}
	}

	out := make([]float64, m.cfg.OutputSize)
	for r := 0; r < m.cfg.OutputSize; r++ {
		sum := m.headB.val[r]
		row := m.headW.val[r*m.cfg.HiddenSize : (r+1)*m.cfg.HiddenSize]
		for j, v := range activated {
			sum += row[j] * v
		}
		out[r] = sum
	}

	if withCache {
		cache.mcMask = mcMask
		cache.dropped = dropped
		cache.activated = activated
	}
	return out, cache
}

// Predict runs a deterministic or stochastic forward pass depending on the
// current mode flags, without recording gradients.
func (m *Model) Predict(seq [][]float64) []float64 {
	out, _ := m.forward(seq, false)
	return out
}

// BatchCache carries the forward-pass state of a mini-batch between
// ForwardBatch and Backward.
type BatchCache struct {
	inputs []([][]float64)
	caches []*sampleCache
}

// ForwardBatch runs every window of a mini-batch in order and returns the
// prediction matrix plus the cache needed for the backward pass.
func (m *Model) ForwardBatch(batch [][][]float64) ([][]float64, *BatchCache) {
	preds := make([][]float64, len(batch))
	bc := &BatchCache{inputs: batch, caches: make([]*sampleCache, len(batch))}
	for i, seq := range batch {
		preds[i], bc.caches[i] = m.forward(seq, true)
	}
	return preds, bc
}

// Backward accumulates parameter gradients for the whole batch given the
// loss gradient w.r.t. each prediction vector.
func (m *Model) Backward(bc *BatchCache, dPreds [][]float64) {
	for i, cache := range bc.caches {
		m.backwardSample(bc.inputs[i], cache, dPreds[i])
	}
}

func (m *Model) backwardSample(seq [][]float64, cache *sampleCache, dOut []float64) {
	H := m.cfg.HiddenSize

	// Head: linear projection
	dAct := make([]float64, H)
	for r, d := range dOut {
		if d == 0 {
			continue
		}
		row := m.headW.val[r*H : (r+1)*H]
		grow := m.headW.grad[r*H : (r+1)*H]
		for j := 0; j < H; j++ {
			grow[j] += d * cache.activated[j]
			dAct[j] += d * row[j]
		}
		m.headB.grad[r] += d
	}

	// ReLU, then the MC dropout unit
	dFinal := make([]float64, H)
	for j := 0; j < H; j++ {
		if cache.dropped[j] > 0 {
			dFinal[j] = dAct[j]
		}
	}
	if cache.mcMask != nil {
		for j := 0; j < H; j++ {
			dFinal[j] *= cache.mcMask[j]
		}
	}

	// Gradient enters the top layer only at the last timestep
	T := len(seq)
	dHs := make([][]float64, T)
	dHs[T-1] = dFinal

	for li := len(m.layers) - 1; li >= 0; li-- {
		if masks := cache.layerMasks[li]; masks != nil {
			for t := range dHs {
				if dHs[t] == nil || masks[t] == nil {
					continue
				}
				for j := range dHs[t] {
					dHs[t][j] *= masks[t][j]
				}
			}
		}
		dHs = m.layers[li].backward(cache.layerCaches[li], dHs)
	}
}

// Step applies one Adam update and clears all gradients.
func (m *Model) Step() {
	m.opt.step(m.params())
}

// Snapshot deep-copies the trainable parameters. Early stopping keeps the
// best-loss snapshot and restores it before prediction.
type Snapshot struct {
	values [][]float64
}

// Snapshot captures the current parameter values.
func (m *Model) Snapshot() *Snapshot {
	ps := m.params()
	s := &Snapshot{values: make([][]float64, len(ps))}
	for i, p := range ps {
		s.values[i] = append([]float64(nil), p.val...)
	}
	return s
}

// Restore writes a snapshot's values back into the model parameters.
func (m *Model) Restore(s *Snapshot) {
	for i, p := range m.params() {
		copy(p.val, s.values[i])
	}
}
