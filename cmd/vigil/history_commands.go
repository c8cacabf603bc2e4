package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []history.Row
			var totals map[string]int

			client, err := ctx.tryDialClient()
			if err != nil {
				return err
			}
			if client != nil {
				defer client.Close()
				resp, err := client.RecentOutcomes(limit)
				if err != nil {
					return err
				}
				rows = resp.Rows
				totals = resp.Totals
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				ledger, err := history.Open(cfg)
				if err != nil {
					return fmt.Errorf("open history ledger: %w", err)
				}
				defer ledger.Close()

				rows, err = ledger.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				stats, err := ledger.Stats(cmd.Context())
				if err != nil {
					return err
				}
				totals = make(map[string]int, len(stats))
				for outcome, count := range stats {
					totals[string(outcome)] = count
				}
			}

			stdout := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No outcomes recorded")
				return nil
			}

			table := renderTable(
				[]string{"Recorded", "Outcome", "Playthrough", "Day", "Save", "Detail"},
				buildHistoryRows(rows),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			fmt.Fprintf(stdout, "All time: %s\n", summarizeTotals(totals))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of rows to show")
	return cmd
}

func newPlaythroughsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "playthroughs",
		Short: "Show per-playthrough outcome totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var summaries []history.PlaythroughSummary

			client, err := ctx.tryDialClient()
			if err != nil {
				return err
			}
			if client != nil {
				defer client.Close()
				resp, err := client.Playthroughs()
				if err != nil {
					return err
				}
				summaries = resp.Playthroughs
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				ledger, err := history.Open(cfg)
				if err != nil {
					return fmt.Errorf("open history ledger: %w", err)
				}
				defer ledger.Close()

				summaries, err = ledger.PlaythroughSummaries(cmd.Context())
				if err != nil {
					return err
				}
			}

			stdout := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(stdout, "No playthroughs recorded")
				return nil
			}

			table := renderTable(
				[]string{"Playthrough", "Processed", "Duplicates", "Failures", "Latest Day", "Last Outcome"},
				buildPlaythroughRows(summaries),
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			)
			fmt.Fprint(stdout, table)
			return nil
		},
	}
}
