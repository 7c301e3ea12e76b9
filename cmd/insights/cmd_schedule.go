package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the configured batch schedule",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tz := cfg.Scheduler.Timezone
			if tz == "" {
				tz = "UTC"
			}
			fmt.Printf("morning briefing: %s (%s)\n", cfg.Scheduler.Cron, tz)
			fmt.Printf("evening briefing: %s (%s)\n", cfg.Scheduler.EveningCron, tz)
			fmt.Printf("max concurrent tenants: %d\n", cfg.Scheduler.MaxConcurrency)
			return nil
		},
	}
}
