package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/pkg/db"
)

func exportCmd(a *app) *cobra.Command {
	var (
		id     int64
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored snapshots",
		Long: `Export stored snapshots as CSV (one row per channel) or JSON.

Examples:
  # Every snapshot as CSV on stdout
  mchconfig export

  # One snapshot as JSON
  mchconfig export --id 42 --format json --output snb.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := db.ParseExportFormat(format)
			if err != nil {
				return err
			}
			if id < 0 {
				return fmt.Errorf("invalid snapshot ID: %d", id)
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if id != 0 {
				if _, err := database.GetSnapshot(id); err != nil {
					return err
				}
			}

			out, closeOut, err := openOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := database.Export(out, f, id); err != nil {
				_ = closeOut()
				return fmt.Errorf("failed to export %s: %w", f, err)
			}
			if err := closeOut(); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			if output != "" {
				what := "all snapshots"
				if id != 0 {
					what = fmt.Sprintf("snapshot %d", id)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", what, output)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "Snapshot ID to export (default: all)")
	cmd.Flags().StringVarP(&format, "format", "f", string(db.ExportFormatCSV), "Output format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}
