package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average of a series and
// returns the most recent value, or nil if there is no data.
//
// EMA Formula:
//
//	EMA_today = (Value_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// If the series is shorter than the period, falls back to the simple mean.
func CalculateEMA(values []float64, length int) *float64 {
	if len(values) == 0 {
		return nil
	}

	if len(values) < length {
		sma := Mean(values)
		return &sma
	}

	ema := talib.Ema(values, length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		result := ema[len(ema)-1]
		return &result
	}

	sma := Mean(values[len(values)-length:])
	return &sma
}

// CalculateSMA calculates the Simple Moving Average of a series and returns
// the most recent value, or nil if there is insufficient data.
func CalculateSMA(values []float64, length int) *float64 {
	if len(values) < length || length <= 0 {
		return nil
	}

	sma := talib.Sma(values, length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	mean := Mean(values[len(values)-length:])
	return &mean
}

func isNaN(v float64) bool {
	return math.IsNaN(v)
}
