// Package panel loads and cleans the wide-format price/volume table that
// feeds the volatility forecasting pipeline.
package panel

import (
	"fmt"
	"math"
)

// Panel is a date-indexed table of per-asset close prices and volumes.
// Rows are sorted ascending by date and contain no missing values; rows
// with any missing value across tracked columns are dropped at load time.
type Panel struct {
	Dates  []string             // YYYY-MM-DD, ascending
	Assets []string             // Asset identifiers, order used throughout the run
	Close  map[string][]float64 // Asset -> close price series, aligned to Dates
	Volume map[string][]float64 // Asset -> volume series, aligned to Dates
}

// Rows returns the number of trading days in the panel.
func (p *Panel) Rows() int {
	return len(p.Dates)
}

// Validate checks the panel's structural invariants: matching close/volume
// asset sets, equal series lengths, and a non-empty table.
func (p *Panel) Validate() error {
	if len(p.Dates) == 0 {
		return fmt.Errorf("empty panel after cleaning")
	}
	if len(p.Assets) == 0 {
		return fmt.Errorf("no assets in panel")
	}
	if len(p.Close) != len(p.Volume) {
		return fmt.Errorf("asset count mismatch: %d close columns, %d volume columns", len(p.Close), len(p.Volume))
	}

	for _, asset := range p.Assets {
		closes, ok := p.Close[asset]
		if !ok {
			return fmt.Errorf("missing close series for asset %s", asset)
		}
		volumes, ok := p.Volume[asset]
		if !ok {
			return fmt.Errorf("missing volume series for asset %s", asset)
		}
		if len(closes) != len(p.Dates) || len(volumes) != len(p.Dates) {
			return fmt.Errorf("series length mismatch for asset %s", asset)
		}
		for i := range closes {
			if math.IsNaN(closes[i]) || math.IsNaN(volumes[i]) {
				return fmt.Errorf("missing value survived cleaning for asset %s at %s", asset, p.Dates[i])
			}
		}
	}

	return nil
}

// LogReturns computes per-asset daily log returns r_t = ln(close_t / close_{t-1}).
// The returned series are one row shorter than the panel and aligned to
// Dates[1:].
func (p *Panel) LogReturns() map[string][]float64 {
	returns := make(map[string][]float64, len(p.Assets))
	for _, asset := range p.Assets {
		closes := p.Close[asset]
		if len(closes) < 2 {
			returns[asset] = []float64{}
			continue
		}
		r := make([]float64, len(closes)-1)
		for i := 1; i < len(closes); i++ {
			if closes[i-1] > 0 && closes[i] > 0 {
				r[i-1] = math.Log(closes[i] / closes[i-1])
			} else {
				r[i-1] = math.NaN()
			}
		}
		returns[asset] = r
	}
	return returns
}
