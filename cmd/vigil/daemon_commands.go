package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/daemonctl"
)

const (
	// startWait bounds how long start/restart wait for the daemon socket to
	// answer after launching the process.
	startWait = 10 * time.Second
	// stopWait bounds how long stop waits for the pipeline to drain before
	// escalating to a signal.
	stopWait = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the vigil daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), startWait)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			announceStart(stdout, result, "Daemon started", "Daemon already running")
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the vigil daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopWait)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}

			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Draining monitor pipeline...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			announceStop(stdout, result)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the vigil daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}

			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, daemonLaunchOptions(ctx), stopWait, startWait)
			if err != nil {
				return err
			}

			if result.WasRunning {
				announceStop(stdout, result.Stop)
			}
			announceStart(stdout, result.Start, "Daemon restarted", "Daemon restarted")
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, tracking, and history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, daemonStatusLine(&snapshot.Daemon, colorize))
			for _, check := range snapshot.Checks {
				fmt.Fprintln(stdout, renderStatusLine(check.Name, checkKind(check), check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			if snapshot.Daemon.Running {
				for _, line := range renderSectionHeader("Monitoring", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range monitoringLines(&snapshot.Daemon, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Tracking", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range trackingLines(&snapshot.Daemon, &snapshot.Health, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Outcome History", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildOutcomeRows(snapshot.Totals)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No outcomes recorded")
				return nil
			}
			table := renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprint(stdout, table)
			return nil
		},
	}
}

// announceStart prints the outcome of a start or restart request. The
// labels differ between the two commands; a Requested state with a daemon
// message echoes the message instead.
func announceStart(w io.Writer, result daemonctl.StartResult, startedMsg, alreadyMsg string) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(w, startedMsg)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(w, alreadyMsg)
	case daemonctl.StartStateRequested:
		if msg := strings.TrimSpace(result.Message); msg != "" {
			fmt.Fprintln(w, msg)
			return
		}
		fmt.Fprintln(w, "Start request sent")
	}
}

func announceStop(w io.Writer, result daemonctl.StopResult) {
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Stopping daemon process (pid %d)...\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: flagValue(ctx.socketFlag),
		ConfigPath: flagValue(ctx.configFlag),
	}
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}
