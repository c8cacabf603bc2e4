package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/sigstore"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear dedup tracking so every save is treated as new",
		Long: "Clear dedup tracking so every save is treated as new.\n\n" +
			"Stored data points and archived snapshots are untouched; only the\n" +
			"seen-day and signature bookkeeping is discarded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			client, err := ctx.tryDialClient()
			if err != nil {
				return err
			}
			if client != nil {
				defer client.Close()
				resp, err := client.ResetTracking()
				if err != nil {
					return err
				}
				if !resp.Reset {
					return fmt.Errorf("daemon did not reset tracking state")
				}
				fmt.Fprintln(stdout, "Tracking state cleared")
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := sigstore.NewStore(cfg.StateFilePath(), nil)
			if err != nil {
				return fmt.Errorf("open tracking state: %w", err)
			}
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Tracking state cleared")
			return nil
		},
	}
}
