package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vigil/internal/daemon"
	"vigil/internal/extractor"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/monitor"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Capture and process every save in the directory once, without the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// The scan mutates the same tracking state the daemon owns, so
			// it takes the daemon lock for its duration.
			lock := flock.New(daemon.LockFilePath(cfg))
			held, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire daemon lock: %w", err)
			}
			if !held {
				return errors.New("a vigil daemon is running; it captures saves automatically (stop it with `vigil stop` to scan manually)")
			}
			defer func() { _ = lock.Unlock() }()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			ledger, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history ledger: %w", err)
			}
			defer ledger.Close()

			ext, err := extractor.New(cfg.MelterBinary(), cfg.Extraction.MelterTimeoutSeconds, logger)
			if err != nil {
				return fmt.Errorf("create extractor: %w", err)
			}

			mon, err := monitor.New(cfg, ext,
				monitor.WithLogger(logger),
				monitor.WithHistory(ledger))
			if err != nil {
				return fmt.Errorf("create monitor: %w", err)
			}

			snap, err := mon.RunScan(cmd.Context())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			rows := buildOutcomeRows(snapshotTotals(snap))
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No saves found")
				return nil
			}
			fmt.Fprintln(stdout, "Scan complete")
			table := renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprint(stdout, table)
			return nil
		},
	}
}
