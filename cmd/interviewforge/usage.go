package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"interviewforge/internal/llm"
)

func usageCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print completion call totals recorded in the usage ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.LLM.UsageLedgerPath == "" {
				return fmt.Errorf("LLM_USAGE_LEDGER is not set")
			}
			if day == "" {
				day = time.Now().UTC().Format("2006-01-02")
			}
			requests, units, errs := llm.NewUsageLedger(cfg.LLM.UsageLedgerPath).Day(day)
			fmt.Fprintf(cmd.OutOrStdout(), "%s requests=%d units=%d errors=%d\n", day, requests, units, errs)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "UTC day as YYYY-MM-DD (default today)")
	return cmd
}
