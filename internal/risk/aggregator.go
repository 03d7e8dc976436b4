// Package risk converts per-asset volatility forecasts and their
// uncertainty into allocation weights, a reconstructed covariance
// structure, and portfolio-level volatility figures.
package risk

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// weightEpsilon keeps the inverse-uncertainty weights finite when a
// predictive std collapses to zero.
const weightEpsilon = 1e-6

// Result is the per-step output of the aggregator.
type Result struct {
	Weights               []float64
	PredictedCov          [][]float64
	PredictedPortfolioVol float64
	TruePortfolioVol      float64
}

// Aggregator builds portfolio risk figures from volatility forecasts.
type Aggregator struct {
	horizon int
	log     zerolog.Logger
}

// NewAggregator creates an aggregator for the given forecast horizon.
func NewAggregator(horizon int, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		horizon: horizon,
		log:     log.With().Str("component", "risk").Logger(),
	}
}

// Aggregate derives allocation weights from predictive uncertainty,
// estimates an asset correlation matrix from the log-return history up to
// the anchor date, reconstructs predicted and true covariance matrices
// from the respective volatility vectors, and computes portfolio
// volatility under the weights.
//
// The same correlation estimate backs both covariance reconstructions;
// only the diagonal volatility differs between predicted and true.
// Numerical degeneracies never crash: non-finite values are sanitized in
// the correlation matrix and propagate as NaN elsewhere.
func (a *Aggregator) Aggregate(predVol, predStd, trueVol []float64, returnHistory [][]float64) Result {
	weights := InverseUncertaintyWeights(predStd)
	corr := a.correlationFromReturns(returnHistory, len(predVol))

	predCov := reconstructCovariance(predVol, corr)
	trueCov := reconstructCovariance(trueVol, corr)

	return Result{
		Weights:               weights,
		PredictedCov:          predCov,
		PredictedPortfolioVol: portfolioVolatility(weights, predCov),
		TruePortfolioVol:      portfolioVolatility(weights, trueCov),
	}
}

// InverseUncertaintyWeights allocates proportionally to 1/(std+eps),
// normalized to sum to one. Assets with higher forecast uncertainty
// receive less weight.
func InverseUncertaintyWeights(predStd []float64) []float64 {
	weights := make([]float64, len(predStd))
	var sum float64
	for i, s := range predStd {
		weights[i] = 1.0 / (math.Abs(s) + weightEpsilon)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// correlationFromReturns estimates an A x A correlation matrix from daily
// log returns: non-overlapping horizon-day sums (most recent block ending
// at the anchor), converted to simple returns, then an exponentially
// weighted covariance with span equal to the horizon, normalized and
// sanitized.
func (a *Aggregator) correlationFromReturns(returnHistory [][]float64, assets int) [][]float64 {
	chunks := a.chunkReturns(returnHistory, assets)
	if len(chunks) < 2 {
		a.log.Debug().Int("chunks", len(chunks)).Msg("Insufficient return history, using identity correlation")
		return identity(assets)
	}

	cov := ewCovariance(chunks, a.horizon)
	return sanitizeCorrelation(correlationFromCovariance(cov))
}

// chunkReturns sums daily log returns into non-overlapping horizon-day
// blocks walking backward from the anchor, then maps each block through
// exp(x)-1. A leading partial block is discarded.
func (a *Aggregator) chunkReturns(returnHistory [][]float64, assets int) [][]float64 {
	h := a.horizon
	n := len(returnHistory)
	count := n / h

	chunks := make([][]float64, count)
	for k := 0; k < count; k++ {
		// Block k counts from the oldest complete block; the last block
		// ends exactly at the anchor row.
		start := n - (count-k)*h
		sum := make([]float64, assets)
		for t := start; t < start+h; t++ {
			for j := 0; j < assets; j++ {
				sum[j] += returnHistory[t][j]
			}
		}
		for j := 0; j < assets; j++ {
			sum[j] = math.Exp(sum[j]) - 1
		}
		chunks[k] = sum
	}
	return chunks
}

// ewCovariance computes an exponentially weighted covariance matrix over
// the block series, span-parameterized with adjust-style weights and the
// unbiased denominator sum(w) - sum(w^2)/sum(w). The most recent block
// carries the largest weight.
func ewCovariance(rows [][]float64, span int) [][]float64 {
	n := len(rows)
	a := len(rows[0])
	alpha := 2.0 / (float64(span) + 1.0)

	w := make([]float64, n)
	var sumW, sumW2 float64
	for k := 0; k < n; k++ {
		w[k] = math.Pow(1-alpha, float64(n-1-k))
		sumW += w[k]
		sumW2 += w[k] * w[k]
	}

	mean := make([]float64, a)
	for k, row := range rows {
		for j, v := range row {
			mean[j] += w[k] * v
		}
	}
	for j := range mean {
		mean[j] /= sumW
	}

	denom := sumW - sumW2/sumW
	cov := newMatrix(a)
	for k, row := range rows {
		for i := 0; i < a; i++ {
			di := row[i] - mean[i]
			for j := i; j < a; j++ {
				cov[i][j] += w[k] * di * (row[j] - mean[j])
			}
		}
	}
	for i := 0; i < a; i++ {
		for j := i; j < a; j++ {
			cov[i][j] /= denom
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

func correlationFromCovariance(cov [][]float64) [][]float64 {
	a := len(cov)
	corr := newMatrix(a)
	for i := 0; i < a; i++ {
		for j := 0; j < a; j++ {
			corr[i][j] = cov[i][j] / math.Sqrt(cov[i][i]*cov[j][j])
		}
	}
	return corr
}

// sanitizeCorrelation replaces non-finite entries (0 off-diagonal, 1 on
// the diagonal) and clips everything to [-1, 1]. Degenerate return series
// reduce to an identity-like structure instead of crashing.
func sanitizeCorrelation(corr [][]float64) [][]float64 {
	for i := range corr {
		for j := range corr[i] {
			v := corr[i][j]
			switch {
			case math.IsNaN(v) || math.IsInf(v, 0):
				if i == j {
					corr[i][j] = 1
				} else {
					corr[i][j] = 0
				}
			case v > 1:
				corr[i][j] = 1
			case v < -1:
				corr[i][j] = -1
			}
		}
	}
	return corr
}

// reconstructCovariance treats vol as a diagonal standard-deviation matrix
// D and returns D * Corr * D.
func reconstructCovariance(vol []float64, corr [][]float64) [][]float64 {
	a := len(vol)
	cov := newMatrix(a)
	for i := 0; i < a; i++ {
		for j := 0; j < a; j++ {
			cov[i][j] = vol[i] * corr[i][j] * vol[j]
		}
	}
	return cov
}

// portfolioVolatility computes sqrt(w' * Cov * w).
func portfolioVolatility(weights []float64, cov [][]float64) float64 {
	a := len(weights)
	flat := make([]float64, 0, a*a)
	for _, row := range cov {
		flat = append(flat, row...)
	}
	w := mat.NewVecDense(a, weights)
	quad := mat.Inner(w, mat.NewDense(a, a, flat), w)
	return math.Sqrt(quad)
}

func identity(n int) [][]float64 {
	m := newMatrix(n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

func newMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
