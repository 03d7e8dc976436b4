// Package results defines the per-step output records of a walk-forward
// run, their on-disk artifact encoding, and their SQLite persistence.
package results

import "time"

// StepResult is one record per simulated trading day. Records are
// append-only: produced exactly once per step and never mutated.
type StepResult struct {
	Step int    `msgpack:"step" json:"step"`
	Date string `msgpack:"date" json:"date"`

	Predicted  []float64 `msgpack:"predicted" json:"predicted"`
	TrueTarget []float64 `msgpack:"true_target" json:"true_target"`

	MAE  []float64 `msgpack:"mae" json:"mae"`
	RMSE []float64 `msgpack:"rmse" json:"rmse"`

	// DirAccuracy is nil for the first horizon steps, when no reference
	// value from horizon steps earlier exists yet. Absent means absent:
	// these steps are excluded from aggregate statistics.
	DirAccuracy []float64 `msgpack:"dir_accuracy,omitempty" json:"dir_accuracy,omitempty"`

	PredStd []float64 `msgpack:"pred_std" json:"pred_std"`
	Weights []float64 `msgpack:"weights" json:"weights"`

	PredictedPortfolioVol float64     `msgpack:"predicted_portfolio_vol" json:"predicted_portfolio_vol"`
	TruePortfolioVol      float64     `msgpack:"true_portfolio_vol" json:"true_portfolio_vol"`
	PredictedCov          [][]float64 `msgpack:"predicted_cov" json:"predicted_cov"`

	Epochs   int     `msgpack:"epochs" json:"epochs"`
	BestLoss float64 `msgpack:"best_loss" json:"best_loss"`
}

// RunMeta describes one stored walk-forward run.
type RunMeta struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Horizon        int       `json:"horizon"`
	SequenceLength int       `json:"sequence_length"`
	Seed           int64     `json:"seed"`
	Assets         []string  `json:"assets"`
	Steps          int       `json:"steps"`
}
