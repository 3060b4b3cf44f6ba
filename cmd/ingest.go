package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/itish2003/docchat/models"
)

func NewIngestCmd(a func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the collection",
		Long:  `Ingest PDF, text or markdown files. A file that was ingested before is replaced.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runIngest(cmd, a(), args, asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "Output results as JSON")
	return cmd
}

func runIngest(cmd *cobra.Command, a *app, paths []string, asJSON bool) error {
	var results []*models.IngestResult
	var failed int
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := a.ingestion.Ingest(cmd.Context(), models.Document{FileName: filepath.Base(path), Data: data})
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			continue
		}
		results = append(results, res)
		if !asJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks (%d stored, %d failed)\n",
				res.FileName, res.ChunksCreated, res.ChunksUpserted, res.ChunksFailed)
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}
