package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"notesync/internal/daemonctl"
	"notesync/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the notesync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: logLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the notesync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, sync, and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, struct {
					DaemonReachable bool               `json:"daemon_reachable"`
					Status          any                `json:"status"`
					Checks          []preflight.Result `json:"checks"`
				}{snap.Reachable, snap.Status, snap.Checks})
			}
			renderStatus(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderStatus(stdout io.Writer, snap daemonctl.Snapshot) {
	colorize := shouldColorize(stdout)
	status := snap.Status

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if snap.Reachable {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
		next := "on request only"
		if !status.NextSync.IsZero() {
			next = status.NextSync.Local().Format(time.DateTime)
		}
		fmt.Fprintln(stdout, renderStatusLine("Next sync", statusInfo, next, colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Sync", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status.Syncing {
		fmt.Fprintln(stdout, renderStatusLine("Session", statusInfo, fmt.Sprintf("%s (%s)", status.SessionID, status.Progress), colorize))
	}
	if status.LastResult != nil {
		fmt.Fprintln(stdout, renderStatusLine("Last session", resultKind(status.LastResult.State), describeResult(status.LastResult), colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Last session", statusInfo, "none this run", colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, check := range snap.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Notes", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status.CountsError != "" {
		fmt.Fprintln(stdout, renderStatusLine("Store", statusError, status.CountsError, colorize))
		return
	}
	c := status.Counts
	rows := [][]string{
		{"Folders", fmt.Sprint(c.Folders)},
		{"Notes", fmt.Sprint(c.Notes)},
		{"Pending sync", fmt.Sprint(c.PendingSync)},
		{"Never synced", fmt.Sprint(c.Unsynced)},
		{"Pending delete", fmt.Sprint(c.PendingDelete)},
	}
	fmt.Fprint(stdout, renderTable([]string{"Kind", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(stdout, "Database: %s (daemon running: %s)\n", status.DatabasePath, yesNo(snap.Reachable))
}
