package features

import "math"

// EWMMean computes an exponentially-weighted moving average with the given
// span. Weights follow alpha = 2/(span+1) with adjust-style normalization:
// every observation from the start of the series contributes, with weight
// (1-alpha)^age. The result is defined from the first observation.
func EWMMean(xs []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1.0)
	decay := 1.0 - alpha

	out := make([]float64, len(xs))
	var sumW, sumWX float64
	for i, x := range xs {
		sumW = 1.0 + decay*sumW
		sumWX = x + decay*sumWX
		out[i] = sumWX / sumW
	}
	return out
}

// EWMStd computes an exponentially-weighted moving standard deviation with
// the given span, using the same adjust-style weights as EWMMean and the
// unbiased weighted-variance denominator sum(w) - sum(w^2)/sum(w). The
// first observation has an undefined std and is reported as NaN; downstream
// alignment drops it.
func EWMStd(xs []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1.0)
	decay := 1.0 - alpha

	out := make([]float64, len(xs))
	var sumW, sumW2, sumWX, sumWX2 float64
	for i, x := range xs {
		sumW = 1.0 + decay*sumW
		sumW2 = 1.0 + decay*decay*sumW2
		sumWX = x + decay*sumWX
		sumWX2 = x*x + decay*sumWX2

		denom := sumW - sumW2/sumW
		if denom <= 0 {
			out[i] = math.NaN()
			continue
		}
		variance := (sumWX2 - sumWX*sumWX/sumW) / denom
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}
