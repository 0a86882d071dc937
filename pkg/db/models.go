package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// Snapshot is a stored memory controller snapshot
type Snapshot struct {
	ID            int64      `json:"id"`
	Host          string     `json:"host"`
	Generation    string     `json:"generation"`
	VendorID      uint16     `json:"vendor_id"`
	DeviceID      uint16     `json:"device_id"`
	ChannelCount  int        `json:"channel_count"`
	TotalCapacity int64      `json:"total_capacity"`
	DataRateMTs   int        `json:"data_rate_mts"`
	ECCCapable    bool       `json:"ecc_capable"`
	Config        ConfigJSON `json:"config"`
	TakenAt       time.Time  `json:"taken_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ChannelRow is the per channel summary stored next to a snapshot
type ChannelRow struct {
	ID              int64     `json:"id"`
	SnapshotID      int64     `json:"snapshot_id"`
	Index           int       `json:"index"`
	Populated       bool      `json:"populated"`
	RankCount       int       `json:"rank_count"`
	DeviceWidth     int       `json:"device_width"`
	CapacityPerRank int64     `json:"capacity_per_rank"`
	ECCEnabled      bool      `json:"ecc_enabled"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConfigJSON stores a full decoded config as a JSON column
type ConfigJSON struct {
	*imc.Config
}

// Value implements the driver.Valuer interface
func (c ConfigJSON) Value() (driver.Value, error) {
	if c.Config == nil {
		return nil, nil
	}
	return json.Marshal(c.Config)
}

// Scan implements the sql.Scanner interface
func (c *ConfigJSON) Scan(value interface{}) error {
	if value == nil {
		c.Config = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into ConfigJSON", value)
	}

	cfg := &imc.Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// MarshalJSON writes the embedded config, or null
func (c ConfigJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Config)
}

// UnmarshalJSON reads a config written by MarshalJSON
func (c *ConfigJSON) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		c.Config = nil
		return nil
	}
	cfg := &imc.Config{}
	if err := json.Unmarshal(b, cfg); err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// SnapshotFilter represents filters for querying snapshots
type SnapshotFilter struct {
	Host       string
	Generation string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// ExportFormat represents the format for exporting data
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ParseExportFormat validates a user supplied format name
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case ExportFormatCSV, ExportFormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (use csv or json)", s)
	}
}
