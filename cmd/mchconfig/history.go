package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/pkg/db"
	"github.com/mscrnt/mchconfig/pkg/imc"
)

func historyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse stored snapshots",
		Long:  "List, show and delete snapshots saved with `mchconfig snapshot --save`.",
	}

	cmd.AddCommand(historyListCmd(a))
	cmd.AddCommand(historyShowCmd(a))
	cmd.AddCommand(historyDeleteCmd(a))

	return cmd
}

func historyListCmd(a *app) *cobra.Command {
	var (
		host       string
		generation string
		since      time.Duration
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Long: `List stored snapshots, newest first.

Examples:
  # Last 10 snapshots
  mchconfig history list --limit 10

  # Haswell machines seen in the last week
  mchconfig history list --generation haswell --since 168h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := db.SnapshotFilter{Host: host, Limit: limit}
			if generation != "" {
				g, err := imc.ParseGeneration(generation)
				if err != nil {
					return err
				}
				filter.Generation = g.String()
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			snaps, err := database.ListSnapshots(filter)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots found")
				return nil
			}

			fmt.Fprintf(out, "%-6s %-20s %-20s %-12s %-8s %-10s %-6s\n",
				"ID", "Taken", "Host", "Generation", "Device", "Total", "MT/s")
			fmt.Fprintln(out, strings.Repeat("-", 88))
			for _, s := range snaps {
				fmt.Fprintf(out, "%-6d %-20s %-20s %-12s %-8s %-10s %-6d\n",
					s.ID,
					s.TakenAt.Local().Format("2006-01-02 15:04:05"),
					s.Host,
					s.Generation,
					fmt.Sprintf("%04x", s.DeviceID),
					formatSize(uint64(s.TotalCapacity)),
					s.DataRateMTs,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Only snapshots from this host")
	cmd.Flags().StringVarP(&generation, "generation", "g", "", "Only this generation (sandybridge, ivybridge, haswell, broadwell)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only snapshots newer than this age, e.g. 24h")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of snapshots to show")

	return cmd
}

func parseSnapshotID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid snapshot ID: %s", arg)
	}
	return id, nil
}

func historyShowCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "show [snapshot-id]",
		Short: "Show one stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			snap, err := database.GetSnapshot(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Fprintf(out, "Snapshot:    #%d\n", snap.ID)
			fmt.Fprintf(out, "Host:        %s\n", snap.Host)
			fmt.Fprintf(out, "Taken:       %s\n", snap.TakenAt.Local().Format(time.RFC3339))
			if snap.Config.Config == nil {
				return fmt.Errorf("snapshot %d has no stored configuration", id)
			}
			printConfig(out, snap.Config.Config, raw)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored record as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "Include the raw registers")

	return cmd
}

func historyDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [snapshot-id]",
		Short: "Delete one stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSnapshotID(args[0])
			if err != nil {
				return err
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := database.DeleteSnapshot(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot #%d\n", id)
			return nil
		},
	}
}
