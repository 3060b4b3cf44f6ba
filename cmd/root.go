// Package cmd implements the docchat command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		Long:          `Ingest PDF and text documents into a vector index and answer questions about them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().String("config", "docchat.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	get := func() *app { return a }
	rootCmd.AddCommand(
		NewServeCmd(get),
		NewIngestCmd(get),
		NewAskCmd(get),
		NewStatsCmd(get),
		NewDropCollectionCmd(get),
		NewWatchCmd(get),
	)
	return rootCmd
}

// Execute runs the command line with ctx as the root context.
func Execute(ctx context.Context, version string) error {
	return NewRootCmd(version).ExecuteContext(ctx)
}
