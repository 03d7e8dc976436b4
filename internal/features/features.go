// Package features derives model inputs and forward-looking realized
// volatility targets from a cleaned price/volume panel.
package features

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/volcast/internal/panel"
)

// Set is the aligned feature/target output of the Builder. Features has one
// row per retained date and 3*len(Assets) columns laid out in three blocks:
// exponentially-weighted volatility per asset, raw log return per asset,
// and the exponentially-weighted liquidity proxy per asset. Targets has
// len(Assets) columns holding realized volatility over the horizon days
// following each row's date. Both tables share the same date index and
// contain no non-finite values.
type Set struct {
	Dates    []string
	Assets   []string
	Features *mat.Dense
	Targets  *mat.Dense
}

// Rows returns the number of aligned feature/target rows.
func (s *Set) Rows() int {
	return len(s.Dates)
}

// Builder computes the feature and target tables for a given horizon.
type Builder struct {
	horizon int
	log     zerolog.Logger
}

// NewBuilder creates a feature builder for the given forecast horizon.
func NewBuilder(horizon int, log zerolog.Logger) *Builder {
	return &Builder{
		horizon: horizon,
		log:     log.With().Str("component", "features").Logger(),
	}
}

// Build derives features and targets from the panel, then aligns the four
// blocks and drops every row with any non-finite value. Dropping incomplete
// rows is the sole missing-data policy; no imputation is performed.
func (b *Builder) Build(p *panel.Panel) (*Set, error) {
	h := b.horizon
	assets := p.Assets
	a := len(assets)

	returns := p.LogReturns()
	n := p.Rows() - 1 // return rows, aligned to p.Dates[1:]
	if n <= 0 {
		return nil, fmt.Errorf("panel too short to compute returns: %d rows", p.Rows())
	}
	dates := p.Dates[1:]

	raw := mat.NewDense(n, 3*a, nil)
	targets := mat.NewDense(n, a, nil)

	for j, asset := range assets {
		r := returns[asset]

		ewmVol := EWMStd(r, h)
		liquidity := EWMMean(logVolumeDiffs(p.Volume[asset]), h)
		target := forwardRealizedVol(r, h)

		for i := 0; i < n; i++ {
			raw.Set(i, j, ewmVol[i])
			raw.Set(i, a+j, r[i])
			raw.Set(i, 2*a+j, liquidity[i])
			targets.Set(i, j, target[i])
		}
	}

	set := align(dates, assets, raw, targets)
	if set.Rows() == 0 {
		return nil, fmt.Errorf("no complete feature rows after alignment (horizon %d, %d panel rows)", h, p.Rows())
	}

	b.log.Debug().
		Int("rows", set.Rows()).
		Int("feature_width", 3*a).
		Int("dropped", n-set.Rows()).
		Msg("Built feature set")

	return set, nil
}

// align intersects the feature and target tables and drops every row with
// any non-finite value in either. It is idempotent: realigning an already
// aligned set keeps every row.
func align(dates []string, assets []string, feat, targ *mat.Dense) *Set {
	rows, fCols := feat.Dims()
	_, tCols := targ.Dims()

	var keep []int
	for i := 0; i < rows; i++ {
		complete := true
		for j := 0; j < fCols && complete; j++ {
			if !isFinite(feat.At(i, j)) {
				complete = false
			}
		}
		for j := 0; j < tCols && complete; j++ {
			if !isFinite(targ.At(i, j)) {
				complete = false
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	if len(keep) == 0 {
		return &Set{Assets: assets}
	}

	outDates := make([]string, len(keep))
	outFeat := mat.NewDense(len(keep), fCols, nil)
	outTarg := mat.NewDense(len(keep), tCols, nil)
	for r, i := range keep {
		outDates[r] = dates[i]
		outFeat.SetRow(r, feat.RawRowView(i))
		outTarg.SetRow(r, targ.RawRowView(i))
	}

	return &Set{Dates: outDates, Assets: assets, Features: outFeat, Targets: outTarg}
}

// forwardRealizedVol computes the rolling sample standard deviation of r
// over a trailing window of h observations, shifted backward by h rows so
// the value at row t covers the h days following t. Rows without a full
// forward window are NaN.
func forwardRealizedVol(r []float64, h int) []float64 {
	n := len(r)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if h < 2 {
		return out
	}
	// Trailing std over h observations, shifted back by h: row t gets the
	// std of r[t+1 : t+h+1], the h returns that follow it.
	for t := 0; t+h < n; t++ {
		out[t] = stat.StdDev(r[t+1:t+h+1], nil)
	}
	return out
}

// logVolumeDiffs returns the first difference of ln(1+volume), aligned to
// the same rows as the log-return series (one shorter than the panel).
func logVolumeDiffs(volume []float64) []float64 {
	out := make([]float64, len(volume)-1)
	for i := 1; i < len(volume); i++ {
		prev := math.Log1p(volume[i-1])
		cur := math.Log1p(volume[i])
		out[i-1] = cur - prev
	}
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
