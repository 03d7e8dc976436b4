package model

import "math/rand"

// Dropout is a stochastic regularization unit. Its Active flag forces
// stochastic behavior independently of the model's train/eval mode; this is
// what lets Monte Carlo sampling keep dropout on while the encoder runs in
// evaluation mode.
type Dropout struct {
	P      float64
	Active bool
}

// mask draws an inverted-dropout mask of n elements, or nil when the unit
// is pass-through (inactive and not training, or zero probability).
func (d *Dropout) mask(rng *rand.Rand, n int, training bool) []float64 {
	if d.P <= 0 || (!training && !d.Active) {
		return nil
	}
	scale := 1.0 / (1.0 - d.P)
	m := make([]float64, n)
	for i := range m {
		if rng.Float64() >= d.P {
			m[i] = scale
		}
	}
	return m
}

func applyMask(x, mask []float64) []float64 {
	if mask == nil {
		return x
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * mask[i]
	}
	return out
}
