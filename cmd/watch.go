package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewWatchCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest a directory and keep it in sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			indexer := a().indexer
			if err := indexer.ScanAndIndexDirectory(ctx, args[0]); err != nil {
				return err
			}
			return indexer.WatchDirectory(ctx, args[0])
		},
	}
}
