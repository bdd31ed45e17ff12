package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/planet-dump-go/internal/records"
)

// Source kinds
const (
	SourceParquet  = "parquet"
	SourcePostgres = "postgres"
)

// ConfigError reports a missing or invalid configuration value
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds the settings for a dump run
type Config struct {
	// Output settings
	OutputFile      string `yaml:"output_file"`
	CompressCommand string `yaml:"compress_command"` // reads stdin; output is redirected to OutputFile
	Generator       string `yaml:"generator"`

	// Document settings
	SnapshotTime string `yaml:"snapshot_time"` // empty = latest timestamp in the data
	UserInfo     string `yaml:"user_info"`     // full or anonymous
	History      bool   `yaml:"history"`
	Discussions  bool   `yaml:"discussions"`
	StrictOrder  bool   `yaml:"strict_order"`

	// Input settings
	Source   string `yaml:"source"`
	InputDir string `yaml:"input_dir"` // Parquet spool directory

	// Database settings
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSchema   string `yaml:"db_schema"`

	// Processing settings
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		CompressCommand: "gzip -c",
		Generator:       "planet-dump-go",
		UserInfo:        records.UserInfoFull.String(),
		Source:          SourceParquet,
		InputDir:        "./planet_data",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "openstreetmap",
		DBUser:          "postgres",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		BatchSize:       100000,
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// an empty file decodes to io.EOF
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// UserInfoLevel returns the parsed user detail level
func (c *Config) UserInfoLevel() (records.UserInfoLevel, error) {
	return records.ParseUserInfoLevel(c.UserInfo)
}

// Snapshot returns the configured document time, or the zero time when it
// should be taken from the data
func (c *Config) Snapshot() (time.Time, error) {
	return ParseTimestamp(c.SnapshotTime)
}

// ParseTimestamp accepts RFC 3339 or a bare date. Empty input yields the
// zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC 3339, e.g. 2024-01-15T00:00:00Z)", s)
}

// Validate checks the settings shared by every command
func (c *Config) Validate() error {
	switch c.Source {
	case SourceParquet:
		if strings.TrimSpace(c.InputDir) == "" {
			return &ConfigError{Field: "input_dir", Reason: "required for the parquet source"}
		}
	case SourcePostgres:
		if c.DBName == "" {
			return &ConfigError{Field: "db_name", Reason: "required for the postgres source"}
		}
	default:
		return &ConfigError{Field: "source", Reason: fmt.Sprintf("unknown source %q (want %s or %s)", c.Source, SourceParquet, SourcePostgres)}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "workers", Reason: "must be at least 1"}
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "batch_size", Reason: "must be at least 1"}
	}
	if _, err := c.UserInfoLevel(); err != nil {
		return &ConfigError{Field: "user_info", Reason: err.Error()}
	}
	if _, err := c.Snapshot(); err != nil {
		return &ConfigError{Field: "snapshot_time", Reason: err.Error()}
	}
	return nil
}

// ValidateDump additionally checks what writing a planet file needs
func (c *Config) ValidateDump() error {
	if strings.TrimSpace(c.OutputFile) == "" {
		return &ConfigError{Field: "output_file", Reason: "required"}
	}
	if strings.TrimSpace(c.CompressCommand) == "" {
		return &ConfigError{Field: "compress_command", Reason: "required"}
	}
	return c.Validate()
}
