// Package report turns a step-result list into console output: per-step
// progress lines and the final per-asset summary. Everything here is
// reproducible from the stored results alone.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/aristath/volcast/internal/results"
	"github.com/aristath/volcast/pkg/formulas"
)

// AssetSummary aggregates one asset's error metrics over a run.
type AssetSummary struct {
	Asset          string  `json:"asset"`
	MAEMean        float64 `json:"mae_mean"`
	MAEStd         float64 `json:"mae_std"`
	RMSEMean       float64 `json:"rmse_mean"`
	RMSEStd        float64 `json:"rmse_std"`
	DirAccuracyPct float64 `json:"dir_accuracy_pct"`
	DirSamples     int     `json:"dir_samples"`
}

// Summary is the final aggregate report of a run.
type Summary struct {
	Steps            int            `json:"steps"`
	PerAsset         []AssetSummary `json:"per_asset"`
	MeanPredictedVol float64        `json:"mean_predicted_vol"`
	MeanTrueVol      float64        `json:"mean_true_vol"`

	// VolCorrelation is the Pearson correlation between the predicted and
	// realized portfolio volatility series. Absent with fewer than two
	// steps or a degenerate series.
	VolCorrelation *float64 `json:"vol_correlation,omitempty"`

	// Trend diagnostics over the predicted portfolio volatility series
	PredictedVolEMA *float64 `json:"predicted_vol_ema,omitempty"`
	PredictedVolSMA *float64 `json:"predicted_vol_sma,omitempty"`
}

// Summarize builds the aggregate report. Steps without a directional
// accuracy record are excluded from that metric, not counted as zero.
func Summarize(assets []string, steps []results.StepResult) Summary {
	s := Summary{Steps: len(steps)}
	if len(steps) == 0 {
		return s
	}

	predVols := make([]float64, len(steps))
	trueVols := make([]float64, len(steps))
	for i, r := range steps {
		predVols[i] = r.PredictedPortfolioVol
		trueVols[i] = r.TruePortfolioVol
	}
	s.MeanPredictedVol = formulas.Mean(predVols)
	s.MeanTrueVol = formulas.Mean(trueVols)
	if c := formulas.Correlation(predVols, trueVols); len(steps) >= 2 && !math.IsNaN(c) {
		s.VolCorrelation = &c
	}
	s.PredictedVolEMA = formulas.CalculateEMA(predVols, 10)
	s.PredictedVolSMA = formulas.CalculateSMA(predVols, 10)

	for j, asset := range assets {
		mae := make([]float64, len(steps))
		rmse := make([]float64, len(steps))
		var dirHits, dirTotal int
		for i, r := range steps {
			mae[i] = r.MAE[j]
			rmse[i] = r.RMSE[j]
			if r.DirAccuracy != nil {
				dirTotal++
				if r.DirAccuracy[j] == 1 {
					dirHits++
				}
			}
		}

		as := AssetSummary{
			Asset:      asset,
			MAEMean:    formulas.Mean(mae),
			MAEStd:     formulas.StdDev(mae),
			RMSEMean:   formulas.Mean(rmse),
			RMSEStd:    formulas.StdDev(rmse),
			DirSamples: dirTotal,
		}
		if dirTotal > 0 {
			as.DirAccuracyPct = 100 * float64(dirHits) / float64(dirTotal)
		}
		s.PerAsset = append(s.PerAsset, as)
	}

	return s
}

// WriteStep prints one per-step progress line.
func WriteStep(w io.Writer, r results.StepResult) {
	fmt.Fprintf(w, "step %3d  %s  epochs=%-3d loss=%.6f  pred_vol=%.5f  true_vol=%.5f\n",
		r.Step, r.Date, r.Epochs, r.BestLoss, r.PredictedPortfolioVol, r.TruePortfolioVol)
}

// Write prints the final summary.
func (s Summary) Write(w io.Writer) {
	fmt.Fprintf(w, "\n=== Walk-forward summary (%d steps) ===\n", s.Steps)
	for _, a := range s.PerAsset {
		fmt.Fprintf(w, "%-8s MAE %.5f ± %.5f   RMSE %.5f ± %.5f", a.Asset, a.MAEMean, a.MAEStd, a.RMSEMean, a.RMSEStd)
		if a.DirSamples > 0 {
			fmt.Fprintf(w, "   dir-acc %.1f%% (n=%d)", a.DirAccuracyPct, a.DirSamples)
		} else {
			fmt.Fprintf(w, "   dir-acc n/a")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "portfolio vol: predicted %.5f vs true %.5f (mean)\n", s.MeanPredictedVol, s.MeanTrueVol)
	if s.VolCorrelation != nil {
		fmt.Fprintf(w, "pred/true vol correlation: %.3f\n", *s.VolCorrelation)
	}
	if s.PredictedVolEMA != nil && s.PredictedVolSMA != nil {
		fmt.Fprintf(w, "predicted vol trend: ema10 %.5f, sma10 %.5f\n", *s.PredictedVolEMA, *s.PredictedVolSMA)
	}
}
