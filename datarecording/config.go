package datarecording

import (
	"errors"
	"fmt"
)

// ErrUnknownRecorder is returned for a RecorderConfig with an unsupported
// Type.
var ErrUnknownRecorder = errors.New("unknown recorder type")

// RecorderConfig selects and configures a DataRecorder backend.
type RecorderConfig struct {
	// Type is "sqlite" (the default) or "clickhouse".
	Type string `yaml:"type"`

	// Path is the SQLite file name without the .sqlite3 suffix.
	Path string `yaml:"path"`

	// ConnStr is the ClickHouse DSN.
	ConnStr string `yaml:"conn_str"`

	BatchSize int `yaml:"batch_size"`
}

// NewDataRecorderWithConfig creates the DataRecorder cfg describes.
func NewDataRecorderWithConfig(cfg RecorderConfig) (DataRecorder, error) {
	switch cfg.Type {
	case "", "sqlite":
		return newSQLiteRecorder(cfg.Path, cfg.BatchSize), nil
	case "clickhouse":
		return NewClickHouseRecorder(cfg.ConnStr, cfg.BatchSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecorder, cfg.Type)
	}
}
