package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"notesync/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines   int
		follow  bool
		session string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var source logstream.TailClient = logstream.NewFileTail(runCtx, filepath.Join(cfg.Paths.LogDir, "notesync.log"))
			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				source = client
			}

			out := cmd.OutOrStdout()
			printed, err := logstream.Stream(runCtx, source, logstream.Options{
				Lines:   lines,
				Follow:  follow,
				Session: session,
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if !printed && !follow {
				fmt.Fprintln(out, "No log lines")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&session, "session", "", "Only show lines mentioning this session id")
	return cmd
}
