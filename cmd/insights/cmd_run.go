package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/founderpulse/insights/internal/briefing"
	"github.com/founderpulse/insights/internal/domain"
)

func newRunCmd() *cobra.Command {
	var (
		tenant      string
		evening     bool
		printDigest bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one batch run",
		Long:  "Runs the full pipeline once, for every tenant or a single one, and exits.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			btype := domain.BriefingMorning
			if evening {
				btype = domain.BriefingEvening
			}

			if tenant != "" {
				b, err := a.runner.RunTenant(ctx, tenant, btype)
				if err != nil {
					return err
				}
				if printDigest {
					fmt.Println(briefing.Describe(b))
				}
				return nil
			}
			return a.runner.RunAll(ctx, btype)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "run a single tenant instead of all")
	cmd.Flags().BoolVar(&evening, "evening", false, "generate the retrospective evening briefing")
	cmd.Flags().BoolVar(&printDigest, "print", false, "print the generated briefing (single tenant only)")
	return cmd
}
