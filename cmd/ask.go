package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itish2003/docchat/models"
)

func NewAskCmd(a func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, _ := cmd.Flags().GetBool("stream")
			req := models.ChatRequest{Message: strings.Join(args, " ")}
			rag := a().rag

			if stream {
				_, err := rag.Stream(cmd.Context(), req, func(text string) error {
					_, err := fmt.Fprint(cmd.OutOrStdout(), text)
					return err
				})
				fmt.Fprintln(cmd.OutOrStdout())
				return err
			}

			resp, err := rag.Answer(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
			if !resp.HasContext {
				fmt.Fprintln(cmd.ErrOrStderr(), "(no matching passages were found)")
			}
			return nil
		},
	}
	cmd.Flags().Bool("stream", false, "Print the answer as it is generated")
	return cmd
}
