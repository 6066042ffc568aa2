package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"notesync/internal/ipc"
	"notesync/internal/logging"
	"notesync/internal/notes"
	"notesync/internal/syncaccess"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		wait       bool
		local      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync session now",
		Long: "Run a sync session now. With the daemon running the session runs there;\n" +
			"otherwise (or with --local) it runs in this process and always waits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stderr := cmd.ErrOrStderr()
			var dial func() (*ipc.Client, error)
			if !local {
				dial = ctx.dialClient
			}
			session, err := syncaccess.OpenWithFallback(
				dial,
				func() (*notes.Store, error) { return notes.Open(cfg) },
				func(store *notes.Store) (syncaccess.Access, error) {
					logger, err := logging.NewFromConfig(cfg)
					if err != nil {
						return nil, err
					}
					return syncaccess.NewLocalAccess(cfg, store, logger, func(_, message string) {
						if !jsonOutput {
							fmt.Fprintln(stderr, message)
						}
					})
				},
			)
			if err != nil {
				return err
			}
			defer session.Close()

			outcome, err := session.Access.Start(runCtx, wait)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, outcome)
			}
			return reportOutcome(cmd.OutOrStdout(), outcome, session.Access.Remote())
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the daemon session to finish")
	cmd.Flags().BoolVar(&local, "local", false, "Run the session in this process even if the daemon is running")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func reportOutcome(out io.Writer, outcome syncaccess.Outcome, remote bool) error {
	if !outcome.Started {
		fmt.Fprintln(out, outcome.Message)
		return nil
	}
	if outcome.Result == nil {
		where := "in the daemon"
		if !remote {
			where = "locally"
		}
		fmt.Fprintf(out, "Sync started %s\n", where)
		return nil
	}

	result := outcome.Result
	fmt.Fprintf(out, "Session %s: %s\n", result.SessionID, result.State)
	fmt.Fprint(out, renderTable([]string{"Change", "Remote", "Local"}, resultRows(result),
		[]columnAlignment{alignLeft, alignRight, alignRight}))
	if result.Stats.Deferred > 0 {
		fmt.Fprintf(out, "%d item(s) changed during the session and will sync next time\n", result.Stats.Deferred)
	}
	if result.State != "success" && result.State != "cancelled" {
		if result.Error != "" {
			return fmt.Errorf("sync failed (%s): %s", result.State, result.Error)
		}
		return errors.New("sync failed: " + result.State)
	}
	return nil
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the daemon's active sync session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncCancel()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}
