package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := sampleConfigTarget(targetPath)
			if err != nil {
				return err
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check existing config: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to point save_dir at your Victoria 3 save folder before starting vigil.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Where to write the file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// sampleConfigTarget resolves where config init writes: an explicit path is
// tilde-expanded, an empty one falls back to the default config location.
func sampleConfigTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("resolve default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Show the resolved configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if flag := cmd.Flags().Lookup("config"); flag != nil {
				path = strings.TrimSpace(flag.Value.String())
			}
			cfg, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolvedPath)
			if !exists {
				fmt.Fprintln(out, "Config file does not exist; defaults shown")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "save_dir = %s\n", cfg.Paths.SaveDir)
			fmt.Fprintf(out, "data_dir = %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "log_dir = %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "state_file = %s\n", cfg.StateFilePath())
			fmt.Fprintf(out, "history_db = %s\n", cfg.HistoryDBPath())
			fmt.Fprintf(out, "extension = %s\n", cfg.Monitor.Extension)
			fmt.Fprintf(out, "rotation_marker = %s\n", cfg.Monitor.RotationMarker)
			fmt.Fprintf(out, "scan_on_start = %s\n", yesNo(cfg.Monitor.ScanOnStart))
			fmt.Fprintf(out, "debounce = %s\n", cfg.Debounce())
			fmt.Fprintf(out, "stabilize_timeout = %s\n", cfg.StabilizeTimeout())
			fmt.Fprintf(out, "melter_binary = %s\n", cfg.MelterBinary())
			fmt.Fprintf(out, "log_format = %s\n", cfg.Logging.Format)
			fmt.Fprintf(out, "log_level = %s\n", cfg.Logging.Level)
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
