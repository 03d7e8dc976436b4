// Package walkforward implements the retraining-and-prediction loop at the
// center of the system: at every simulated trading day the model is
// retrained on an expanding window of history, produces a Monte Carlo
// volatility forecast for the next window, and that forecast is turned
// into portfolio risk figures.
package walkforward

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/volcast/internal/config"
	"github.com/aristath/volcast/internal/dataset"
	"github.com/aristath/volcast/internal/model"
	"github.com/aristath/volcast/internal/risk"
	"github.com/aristath/volcast/internal/results"
)

// ProgressFunc receives each step result as it is produced.
type ProgressFunc func(results.StepResult)

// Driver owns the single model instance and the growing step-result list.
// Model parameters are mutated in place across steps: the model is never
// reinitialized between steps, so each step warm-starts from the previous
// step's weights.
type Driver struct {
	cfg        config.SimulationConfig
	aggregator *risk.Aggregator
	progress   ProgressFunc
	log        zerolog.Logger
}

// New creates a walk-forward driver.
func New(cfg config.SimulationConfig, log zerolog.Logger) *Driver {
	return &Driver{
		cfg:        cfg,
		aggregator: risk.NewAggregator(cfg.Horizon, log),
		log:        log.With().Str("component", "walkforward").Logger(),
	}
}

// OnStep registers a progress callback invoked once per completed step.
func (d *Driver) OnStep(fn ProgressFunc) {
	d.progress = fn
}

// Run executes the full walk-forward loop over the given windows.
// returnHistory holds daily log returns (rows in time order, one column
// per asset) with returnDates aligned to its rows; the risk aggregator
// receives the slice up to each step's anchor date. Cancellation is
// honored at step boundaries only, the single clean stop point.
func (d *Driver) Run(ctx context.Context, windows []dataset.Window, returnHistory [][]float64, returnDates []string) ([]results.StepResult, error) {
	n := len(windows)
	if n == 0 {
		return nil, fmt.Errorf("no windows to simulate")
	}

	initialTrain := int(math.Floor(d.cfg.TrainFraction * float64(n)))
	steps := n - initialTrain - d.cfg.Horizon
	if steps <= 0 {
		return nil, fmt.Errorf("not enough windows for any walk-forward step: %d windows, initial train %d, horizon %d", n, initialTrain, d.cfg.Horizon)
	}

	featWidth := len(windows[0].Features[0])
	assets := len(windows[0].Target)

	m := model.New(model.Config{
		InputSize:    featWidth,
		HiddenSize:   d.cfg.HiddenSize,
		OutputSize:   assets,
		Layers:       d.cfg.Layers,
		Dropout:      d.cfg.Dropout,
		LearningRate: d.cfg.LearningRate,
	}, d.cfg.Seed)

	dateIndex := make(map[string]int, len(returnDates))
	for i, date := range returnDates {
		dateIndex[date] = i
	}

	d.log.Info().
		Int("windows", n).
		Int("initial_train", initialTrain).
		Int("steps", steps).
		Msg("Starting walk-forward loop")

	out := make([]results.StepResult, 0, steps)
	for t := 0; t < steps; t++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		// Reproducibility: every step reseeds with base seed + step index
		m.Reseed(d.cfg.Seed + int64(t))

		training := windows[:initialTrain+t]
		featScaler, targScaler, err := fitScalers(training)
		if err != nil {
			return out, fmt.Errorf("step %d: %w", t, err)
		}

		epochs, bestLoss := d.trainStep(m, training, featScaler, targScaler)

		predictWindow := windows[initialTrain+t]
		stdFeatures := featScaler.TransformRows(predictWindow.Features)

		meanStd, stdStd := model.Sample(m, stdFeatures, d.cfg.MCSamples)
		pred := targScaler.Inverse(meanStd)
		predStd := make([]float64, assets)
		for j := range predStd {
			predStd[j] = stdStd[j] * targScaler.Scale[j]
		}

		trueTarget := predictWindow.Target

		mae := make([]float64, assets)
		rmse := make([]float64, assets)
		for j := 0; j < assets; j++ {
			diff := math.Abs(pred[j] - trueTarget[j])
			mae[j] = diff
			rmse[j] = diff
		}

		// Directional accuracy needs a reference from horizon steps back
		var dirAcc []float64
		if t >= d.cfg.Horizon {
			ref := out[t-d.cfg.Horizon].TrueTarget
			dirAcc = make([]float64, assets)
			for j := 0; j < assets; j++ {
				if sign(pred[j]-ref[j]) == sign(trueTarget[j]-ref[j]) {
					dirAcc[j] = 1
				}
			}
		}

		anchor, ok := dateIndex[predictWindow.Date]
		if !ok {
			return out, fmt.Errorf("step %d: anchor date %s missing from return history", t, predictWindow.Date)
		}
		agg := d.aggregator.Aggregate(pred, predStd, trueTarget, returnHistory[:anchor+1])

		step := results.StepResult{
			Step:                  t,
			Date:                  predictWindow.Date,
			Predicted:             pred,
			TrueTarget:            append([]float64(nil), trueTarget...),
			MAE:                   mae,
			RMSE:                  rmse,
			DirAccuracy:           dirAcc,
			PredStd:               predStd,
			Weights:               agg.Weights,
			PredictedPortfolioVol: agg.PredictedPortfolioVol,
			TruePortfolioVol:      agg.TruePortfolioVol,
			PredictedCov:          agg.PredictedCov,
			Epochs:                epochs,
			BestLoss:              bestLoss,
		}
		out = append(out, step)

		d.log.Info().
			Int("step", t).
			Str("date", step.Date).
			Int("epochs", epochs).
			Float64("loss", bestLoss).
			Float64("pred_vol", step.PredictedPortfolioVol).
			Float64("true_vol", step.TruePortfolioVol).
			Msg("Completed step")

		if d.progress != nil {
			d.progress(step)
		}
	}

	return out, nil
}

// fitScalers fits the feature and target standardizers on the training
// subset only. The feature scaler sees every timestep row of every
// training window; the target scaler sees one vector per window.
func fitScalers(training []dataset.Window) (*dataset.Scaler, *dataset.Scaler, error) {
	var featRows [][]float64
	targRows := make([][]float64, 0, len(training))
	for _, w := range training {
		featRows = append(featRows, w.Features...)
		targRows = append(targRows, w.Target)
	}

	featScaler, err := dataset.FitScaler(featRows)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit feature scaler: %w", err)
	}
	targScaler, err := dataset.FitScaler(targRows)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit target scaler: %w", err)
	}
	return featScaler, targScaler, nil
}

// trainStep retrains the model on the standardized training subset with
// early stopping. Mini-batches keep their time order: no shuffling, since
// batch order affects the gradient trajectory and thus reproducibility.
// The last batch's loss per epoch is the early-stopping signal; the
// best-loss parameter snapshot is restored before returning. The first
// epoch unconditionally sets the best snapshot, so a snapshot always
// exists even without convergence.
func (d *Driver) trainStep(m *model.Model, training []dataset.Window, featScaler, targScaler *dataset.Scaler) (int, float64) {
	inputs := make([][][]float64, len(training))
	targets := make([][]float64, len(training))
	for i, w := range training {
		inputs[i] = featScaler.TransformRows(w.Features)
		targets[i] = targScaler.Transform(w.Target)
	}

	m.SetTraining(true)

	best := math.Inf(1)
	var bestSnap *model.Snapshot
	badEpochs := 0
	epochs := 0

	for epoch := 0; epoch < d.cfg.MaxEpochs; epoch++ {
		epochs = epoch + 1
		var lastLoss float64

		for start := 0; start < len(inputs); start += d.cfg.BatchSize {
			end := start + d.cfg.BatchSize
			if end > len(inputs) {
				end = len(inputs)
			}

			preds, cache := m.ForwardBatch(inputs[start:end])
			loss, grads := compositeLoss(preds, targets[start:end], d.cfg.DirLossWeight)
			m.Backward(cache, grads)
			m.Step()
			lastLoss = loss
		}

		if lastLoss < best || bestSnap == nil {
			best = lastLoss
			bestSnap = m.Snapshot()
			badEpochs = 0
		} else {
			badEpochs++
			if badEpochs >= d.cfg.Patience {
				break
			}
		}
	}

	m.Restore(bestSnap)
	m.SetTraining(false)
	return epochs, best
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
