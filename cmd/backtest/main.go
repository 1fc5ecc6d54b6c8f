// Command backtest replays a candle CSV file through the simulator using
// a YAML scenario and writes the report artifacts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saygoodluck/trading-bot/internal/adapters/logger"
	"github.com/saygoodluck/trading-bot/internal/backtest"
	"github.com/saygoodluck/trading-bot/internal/strategy"
)

func main() {
	var (
		scenarioPath string
		outputDir    string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a backtest scenario against a candle CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger := logger.NewStdLogger(logger.ParseLevel(logLevel))

			scenario, err := backtest.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}

			runner := backtest.NewRunner(strategy.NewRegistry(), appLogger)
			result, err := runner.Run(cmd.Context(), scenario)
			if err != nil {
				return err
			}

			if outputDir != "" {
				if err := result.Export(outputDir); err != nil {
					return err
				}
				appLogger.Info(context.Background(), "Report written", map[string]interface{}{"dir": outputDir})
			}

			summary, err := json.MarshalIndent(result.Summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(summary))
			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "scenario.yaml", "path to the scenario YAML file")
	cmd.Flags().StringVarP(&outputDir, "out", "o", "", "directory for report artifacts (optional)")
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
