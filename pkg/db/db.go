package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// ErrNotFound is returned when a snapshot id does not exist
var ErrNotFound = errors.New("snapshot not found")

// DB wraps the SQL database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		generation TEXT NOT NULL,
		vendor_id INTEGER NOT NULL,
		device_id INTEGER NOT NULL,
		channel_count INTEGER NOT NULL,
		total_capacity INTEGER NOT NULL,
		data_rate_mts INTEGER NOT NULL,
		ecc_capable BOOLEAN DEFAULT 0,
		config TEXT NOT NULL,
		taken_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL,
		channel_index INTEGER NOT NULL,
		populated BOOLEAN DEFAULT 0,
		rank_count INTEGER DEFAULT 0,
		device_width INTEGER DEFAULT 0,
		capacity_per_rank INTEGER DEFAULT 0,
		ecc_enabled BOOLEAN DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_host ON snapshots(host);
	CREATE INDEX IF NOT EXISTS idx_snapshots_generation ON snapshots(generation);
	CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);
	CREATE INDEX IF NOT EXISTS idx_channels_snapshot_id ON channels(snapshot_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot stores a decoded config and its channel summary in one
// transaction
func (db *DB) SaveSnapshot(host string, cfg *imc.Config, takenAt time.Time) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	snap := &Snapshot{
		Host:          host,
		Generation:    cfg.Generation.String(),
		VendorID:      cfg.VendorID,
		DeviceID:      cfg.DeviceID,
		ChannelCount:  cfg.ChannelCount,
		TotalCapacity: int64(cfg.TotalCapacity()),
		DataRateMTs:   int(cfg.Frequency.DataRateMTs),
		ECCCapable:    cfg.ECCCapable,
		Config:        ConfigJSON{Config: cfg},
		TakenAt:       takenAt,
		CreatedAt:     time.Now(),
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Only rollback if we haven't committed
		_ = tx.Rollback()
	}()

	result, err := tx.Exec(
		`INSERT INTO snapshots (host, generation, vendor_id, device_id, channel_count,
		 total_capacity, data_rate_mts, ecc_capable, config, taken_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Host, snap.Generation, snap.VendorID, snap.DeviceID, snap.ChannelCount,
		snap.TotalCapacity, snap.DataRateMTs, snap.ECCCapable, snap.Config, snap.TakenAt, snap.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO channels (snapshot_id, channel_index, populated, rank_count,
		 device_width, capacity_per_rank, ecc_enabled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ch := range cfg.Channels {
		if _, err := stmt.Exec(id, ch.Index, ch.Populated, ch.RankCount,
			ch.DeviceWidth, int64(ch.CapacityPerRank), ch.ECCEnabled); err != nil {
			return nil, fmt.Errorf("failed to insert channel %d: %w", ch.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	snap.ID = id
	return snap, nil
}

const snapshotColumns = `id, host, generation, vendor_id, device_id, channel_count,
	total_capacity, data_rate_mts, ecc_capable, config, taken_at, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	snap := &Snapshot{}
	err := row.Scan(
		&snap.ID, &snap.Host, &snap.Generation, &snap.VendorID, &snap.DeviceID,
		&snap.ChannelCount, &snap.TotalCapacity, &snap.DataRateMTs, &snap.ECCCapable,
		&snap.Config, &snap.TakenAt, &snap.CreatedAt,
	)
	return snap, err
}

// GetSnapshot retrieves a snapshot by ID
func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	snap, err := scanSnapshot(db.conn.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots retrieves snapshots based on filters, newest first
func (db *DB) ListSnapshots(filter SnapshotFilter) ([]*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE 1=1`
	args := []interface{}{}

	if filter.Host != "" {
		query += " AND host = ?"
		args = append(args, filter.Host)
	}

	if filter.Generation != "" {
		query += " AND generation = ?"
		args = append(args, filter.Generation)
	}

	if filter.Since != nil {
		query += " AND taken_at >= ?"
		args = append(args, filter.Since)
	}

	if filter.Until != nil {
		query += " AND taken_at <= ?"
		args = append(args, filter.Until)
	}

	query += " ORDER BY taken_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// GetChannels retrieves the channel rows of a snapshot in channel order
func (db *DB) GetChannels(snapshotID int64) ([]*ChannelRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, snapshot_id, channel_index, populated, rank_count,
		 device_width, capacity_per_rank, ecc_enabled, created_at
		 FROM channels WHERE snapshot_id = ? ORDER BY channel_index`,
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []*ChannelRow
	for rows.Next() {
		ch := &ChannelRow{}
		err := rows.Scan(
			&ch.ID, &ch.SnapshotID, &ch.Index, &ch.Populated, &ch.RankCount,
			&ch.DeviceWidth, &ch.CapacityPerRank, &ch.ECCEnabled, &ch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

// DeleteSnapshot removes a snapshot and its channel rows
func (db *DB) DeleteSnapshot(id int64) error {
	result, err := db.conn.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}
