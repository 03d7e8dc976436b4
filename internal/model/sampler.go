package model

import "gonum.org/v1/gonum/stat"

// Sample performs Monte Carlo dropout inference: the encoder is placed in
// deterministic evaluation mode, the MC dropout unit is forced active, and
// n independent stochastic forward passes run over the same window. Returns
// the elementwise sample mean and sample standard deviation of the n output
// vectors, still in standardized units. Mode flags are restored before
// returning so the next training step re-enters its own mode cleanly.
func Sample(m *Model, seq [][]float64, n int) (mean, std []float64) {
	wasTraining := m.training
	wasActive := m.MC.Active

	m.SetTraining(false)
	m.MC.Active = true
	defer func() {
		m.SetTraining(wasTraining)
		m.MC.Active = wasActive
	}()

	outs := make([][]float64, n)
	for i := 0; i < n; i++ {
		outs[i] = m.Predict(seq)
	}

	width := m.cfg.OutputSize
	mean = make([]float64, width)
	std = make([]float64, width)
	column := make([]float64, n)
	for j := 0; j < width; j++ {
		for i := 0; i < n; i++ {
			column[i] = outs[i][j]
		}
		mean[j] = stat.Mean(column, nil)
		std[j] = stat.StdDev(column, nil)
	}
	return mean, std
}
