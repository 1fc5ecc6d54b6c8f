package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// Export writes the result artifacts into dir: a JSON summary, the trade
// log and the round trips as CSV.
func (res *Result) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir %s: %w", dir, err)
	}

	summary := struct {
		Scenario    ScenarioConfig `json:"scenario"`
		Summary     interface{}    `json:"summary"`
		TripStats   interface{}    `json:"tripStats"`
		EquityStats interface{}    `json:"equityStats"`
	}{res.Scenario, res.Summary, res.TripStats, res.EquityStats}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), raw, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if err := writeCSV(filepath.Join(dir, "trades.csv"), res.Trades); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, "roundtrips.csv"), res.RoundTrips)
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
