package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ilog "github.com/founderpulse/insights/internal/log"
)

const (
	appName = "insights"
	version = "v1.2.0"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Per-tenant KPI analytics and founder briefings",
		Version: version,
		Long: `insights analyzes each tenant's KPI history, detects anomalies,
classifies trends, traces cross-KPI root causes, and assembles a ranked,
length-bounded briefing twice a day.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			ilog.Setup(flagLogLevel, flagLogJSON)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config YAML (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit JSON logs instead of console output")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
