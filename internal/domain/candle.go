package domain

import "time"

// Candle represents a single OHLCV bar.
// Timestamp is the bar open time in milliseconds since the Unix epoch;
// within one symbol the stream is ordered by non-decreasing Timestamp.
// Missing bars are simply absent, never interpolated.
type Candle struct {
	Timestamp int64   // Bar open time (ms)
	Open      float64 // Opening price
	High      float64 // Highest price
	Low       float64 // Lowest price
	Close     float64 // Closing price
	Volume    float64 // Trading volume
}

// Time returns the candle open time as a time.Time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// IsValid reports whether the OHLC values satisfy low <= open,close <= high.
func (c Candle) IsValid() bool {
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	if c.High < c.Open || c.High < c.Close {
		return false
	}
	return c.Low <= c.High
}
