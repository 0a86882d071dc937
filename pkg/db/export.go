package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

var csvHeaders = []string{
	"Snapshot ID", "Host", "Taken At", "Generation", "Device ID", "Data Rate (MT/s)",
	"Channel", "Populated", "Ranks", "Device Width", "Capacity Per Rank (MiB)", "ECC",
}

// ExportCSV exports one snapshot to CSV format, one row per channel
func (db *DB) ExportCSV(w io.Writer, snapshotID int64) error {
	snap, err := db.GetSnapshot(snapshotID)
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := db.writeSnapshotRows(csvWriter, snap); err != nil {
		return err
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportAllCSV exports every snapshot to CSV format
func (db *DB) ExportAllCSV(w io.Writer) error {
	snaps, err := db.ListSnapshots(SnapshotFilter{})
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, snap := range snaps {
		if err := db.writeSnapshotRows(csvWriter, snap); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (db *DB) writeSnapshotRows(csvWriter *csv.Writer, snap *Snapshot) error {
	channels, err := db.GetChannels(snap.ID)
	if err != nil {
		return fmt.Errorf("failed to get channels: %w", err)
	}

	for _, ch := range channels {
		row := []string{
			strconv.FormatInt(snap.ID, 10),
			snap.Host,
			snap.TakenAt.Format("2006-01-02 15:04:05"),
			snap.Generation,
			fmt.Sprintf("0x%04x", snap.DeviceID),
			strconv.Itoa(snap.DataRateMTs),
			strconv.Itoa(ch.Index),
			strconv.FormatBool(ch.Populated),
			strconv.Itoa(ch.RankCount),
			strconv.Itoa(ch.DeviceWidth),
			strconv.FormatInt(ch.CapacityPerRank>>20, 10),
			strconv.FormatBool(ch.ECCEnabled),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// ExportJSON exports one snapshot with its full decoded config
func (db *DB) ExportJSON(w io.Writer, snapshotID int64) error {
	snap, err := db.GetSnapshot(snapshotID)
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportAllJSON exports every snapshot as a JSON array
func (db *DB) ExportAllJSON(w io.Writer) error {
	snaps, err := db.ListSnapshots(SnapshotFilter{})
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snaps); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Export writes one snapshot, or all of them when snapshotID is zero
func (db *DB) Export(w io.Writer, format ExportFormat, snapshotID int64) error {
	switch format {
	case ExportFormatCSV:
		if snapshotID == 0 {
			return db.ExportAllCSV(w)
		}
		return db.ExportCSV(w, snapshotID)
	case ExportFormatJSON:
		if snapshotID == 0 {
			return db.ExportAllJSON(w)
		}
		return db.ExportJSON(w, snapshotID)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
