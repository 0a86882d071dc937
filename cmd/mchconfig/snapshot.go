package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func snapshotCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		raw    bool
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Decode the current memory controller configuration",
		Long: `Decode the memory controller configuration once and print it.

Exit codes:
  2  unsupported processor (no register was read)
  3  register access denied (run as root)
  4  registers could not be decoded

Examples:
  # Human readable summary
  sudo mchconfig snapshot

  # JSON with every raw register, stored in the history
  sudo mchconfig snapshot --json --raw --save

  # Decode a captured machine
  mchconfig snapshot --replay testdata/sandybridge.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.snapshot()
			if err != nil {
				return err
			}

			if save {
				database, err := a.openDB()
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()

				snap, err := database.SaveSnapshot(a.hostname(), cfg, time.Now())
				if err != nil {
					return fmt.Errorf("failed to save snapshot: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved snapshot #%d\n", snap.ID)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if !raw {
					trimmed := *cfg
					trimmed.Registers = nil
					cfg = &trimmed
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			printConfig(out, cfg, raw)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().BoolVar(&raw, "raw", false, "Include every raw register and its fields")
	cmd.Flags().BoolVar(&save, "save", false, "Store the snapshot in the history database")

	return cmd
}
