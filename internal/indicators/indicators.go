// Package indicators provides the technical indicator series used by the
// risk governor, the trend filter and the bundled strategies.
//
// All functions return a series aligned 1:1 with the input; positions where
// the indicator is not yet defined hold NaN. Callers gate on
// math.IsNaN/IsInf before acting on a value.
package indicators

import (
	"math"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// SMA computes the Simple Moving Average of values over period.
// The first period-1 entries are NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA computes the Exponential Moving Average of values over period,
// seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Closes extracts the close prices from a candle slice.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
