package dataset

import (
	"fmt"
	"math"
)

// Scaler standardizes vectors feature-wise to zero mean and unit variance.
// It is fitted on the training subset only and applied unchanged at
// prediction time.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-feature mean and population standard deviation
// over the given samples. Features with zero variance get a unit scale so
// transformation maps them to exactly zero instead of dividing by zero.
func FitScaler(samples [][]float64) (*Scaler, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on zero samples")
	}
	width := len(samples[0])
	n := float64(len(samples))

	mean := make([]float64, width)
	for _, s := range samples {
		for j, v := range s {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, width)
	for _, s := range samples {
		for j, v := range s {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	return &Scaler{Mean: mean, Scale: scale}, nil
}

// Transform standardizes a single vector.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformRows standardizes each row of a sequence in place order.
func (s *Scaler) TransformRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = s.Transform(r)
	}
	return out
}

// Inverse maps a standardized vector back to raw units.
func (s *Scaler) Inverse(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}
