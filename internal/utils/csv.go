// Package utils holds small shared helpers, currently the candle CSV codec
// used by the fetch and backtest commands.
package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

var candleHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// WriteCandlesToCSV writes candles with a header row. Timestamps are
// written in milliseconds.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		rec := []string{
			strconv.FormatInt(c.Timestamp, 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	return writer.Error()
}

// ReadCandlesFromCSV reads a candle file written by WriteCandlesToCSV.
// Rows failing the OHLC sanity check are rejected.
func ReadCandlesFromCSV(filename string) ([]domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty candle file %s", filename)
	}

	candles := make([]domain.Candle, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: expected 6 fields, got %d", i+2, len(rec))
		}
		c, err := parseCandle(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if !c.IsValid() {
			return nil, fmt.Errorf("row %d: inconsistent ohlc values", i+2)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandle(rec []string) (domain.Candle, error) {
	var c domain.Candle
	var err error
	if c.Timestamp, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
		return c, fmt.Errorf("timestamp: %w", err)
	}
	fields := []struct {
		name string
		dst  *float64
		raw  string
	}{
		{"open", &c.Open, rec[1]},
		{"high", &c.High, rec[2]},
		{"low", &c.Low, rec[3]},
		{"close", &c.Close, rec[4]},
		{"volume", &c.Volume, rec[5]},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return c, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return c, nil
}
