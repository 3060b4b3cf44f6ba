package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errDropNotConfirmed = errors.New("refusing to drop the collection without --yes")

func NewDropCollectionCmd(a func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop-collection",
		Short: "Delete the whole collection",
		Long:  `Delete the collection and every point in it. The next ingestion recreates it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errDropNotConfirmed
			}
			if err := a().ingestion.DropCollection(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %s deleted.\n", a().cfg.Index.Collection)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Confirm deletion")
	return cmd
}
