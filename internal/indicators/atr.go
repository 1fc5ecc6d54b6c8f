package indicators

import (
	"math"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// ATR computes the Average True Range over period using Wilder's
// smoothing, seeded with the first bar's true range. The output is
// aligned with the input candles.
//
// True range is the greatest of:
//  1. high - low
//  2. |high - previous close|
//  3. |low - previous close|
func ATR(candles []domain.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 || period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	atr := 0.0
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prevClose := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		}
		if i == 0 {
			atr = tr
		} else {
			atr = (atr*float64(period-1) + tr) / float64(period)
		}
		out[i] = atr
	}
	return out
}
