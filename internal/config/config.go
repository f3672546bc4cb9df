//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-salesdw.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sink names.
const (
	SinkPostgres = "postgres"
	SinkDuckDB   = "duckdb"
	SinkNone     = "none"
)

// DateLayout is the layout of date settings.
const DateLayout = "2006-01-02"

// Config holds all configuration for pgedge-salesdw.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Sink selects where accepted rows are written: postgres, duckdb or none.
	Sink string `mapstructure:"sink"`

	// DuckDBPath is the DuckDB database file; empty means in memory.
	DuckDBPath string `mapstructure:"duckdb_path"`

	Load     LoadConfig     `mapstructure:"load"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Dedupe   DedupeConfig   `mapstructure:"dedupe"`
	Generate GenerateConfig `mapstructure:"generate"`
	Query    QueryConfig    `mapstructure:"query"`
}

// LoadConfig holds configuration for batch loading.
type LoadConfig struct {
	// AsOf is the default change date (YYYY-MM-DD) of dimension rows
	// without an as_of column. Empty means today.
	AsOf string `mapstructure:"as_of"`

	// ReportFile is where the JSON batch report is written; empty skips it.
	ReportFile string `mapstructure:"report_file"`

	// Hydrate restores registries from the sink before loading.
	Hydrate bool `mapstructure:"hydrate"`

	// Workers is the number of concurrent fact workers.
	Workers int `mapstructure:"workers"`
}

// StreamConfig holds configuration for Kafka ingestion.
type StreamConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`

	// MaxRetries bounds retries of facts waiting for dimensions.
	MaxRetries int `mapstructure:"max_retries"`

	// InitialBackoffMs is the first retry delay in milliseconds; it
	// doubles per retry up to MaxBackoffMs.
	InitialBackoffMs int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `mapstructure:"max_backoff_ms"`

	// MetricsAddr serves Prometheus metrics when set (e.g. ":9102").
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// DedupeConfig holds configuration for the cross-process duplicate guard.
type DedupeConfig struct {
	// RedisAddr enables the guard when set.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// TTLHours expires claims; 0 keeps them forever.
	TTLHours int `mapstructure:"ttl_hours"`
}

// GenerateConfig holds configuration for sample data generation.
type GenerateConfig struct {
	Customers    int     `mapstructure:"customers"`
	Products     int     `mapstructure:"products"`
	Stores       int     `mapstructure:"stores"`
	Days         int     `mapstructure:"days"`
	Orders       int     `mapstructure:"orders"`
	InvalidRatio float64 `mapstructure:"invalid_ratio"`
	ReturnRatio  float64 `mapstructure:"return_ratio"`
	ChangeRatio  float64 `mapstructure:"change_ratio"`

	// Profile is the traffic profile shaping order timestamps.
	Profile  string `mapstructure:"profile"`
	Timezone string `mapstructure:"timezone"`

	// Seed makes generation reproducible; 0 picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// Start is the first trading day (YYYY-MM-DD).
	Start string `mapstructure:"start"`

	// OutputDir receives the batch files.
	OutputDir string `mapstructure:"output_dir"`

	// Publish sends the generated facts to the stream topic instead of
	// writing facts.csv.
	Publish bool `mapstructure:"publish"`
}

// QueryConfig holds configuration for the sample query workload.
type QueryConfig struct {
	Workers  int    `mapstructure:"workers"`
	Profile  string `mapstructure:"profile"`
	Timezone string `mapstructure:"timezone"`

	// Duration is how long to run in seconds (0 = indefinite).
	Duration int `mapstructure:"duration"`

	// ReportInterval is how often to print statistics (in seconds).
	ReportInterval int `mapstructure:"report_interval"`

	// Queries restricts the mix; empty runs every sample query.
	Queries []string `mapstructure:"queries"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Sink:     SinkPostgres,
		Load: LoadConfig{
			Hydrate: true,
			Workers: 4,
		},
		Stream: StreamConfig{
			Brokers:          []string{"localhost:9092"},
			Topic:            "sales-facts",
			GroupID:          "pgedge-salesdw",
			MaxRetries:       5,
			InitialBackoffMs: 200,
			MaxBackoffMs:     10000,
		},
		Dedupe: DedupeConfig{
			TTLHours: 0,
		},
		Generate: GenerateConfig{
			Customers:    200,
			Products:     50,
			Stores:       5,
			Days:         14,
			Orders:       40,
			InvalidRatio: 0.02,
			ReturnRatio:  0.05,
			ChangeRatio:  0.20,
			Profile:      "store-regional",
			Timezone:     "UTC",
			Start:        "2024-03-01",
			OutputDir:    "batch",
		},
		Query: QueryConfig{
			Workers:        4,
			Profile:        "store-global",
			Timezone:       "UTC",
			ReportInterval: 30,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-salesdw.yaml
// 3. ~/.config/pgedge-salesdw/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-salesdw")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-salesdw"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	switch c.Sink {
	case SinkPostgres:
		if c.Connection == "" {
			return fmt.Errorf("connection string is required for the postgres sink")
		}
	case SinkDuckDB, SinkNone:
	default:
		return fmt.Errorf("sink must be 'postgres', 'duckdb' or 'none', got '%s'", c.Sink)
	}
	if c.Dedupe.TTLHours < 0 {
		return fmt.Errorf("dedupe ttl_hours must be non-negative")
	}
	return nil
}

// ValidateInit checks configuration required for the init command.
func (c *Config) ValidateInit() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Load.Workers < 1 {
		return fmt.Errorf("load workers must be at least 1")
	}
	if _, err := c.AsOf(); err != nil {
		return err
	}
	return nil
}

// ValidateStream checks configuration required for the stream command.
func (c *Config) ValidateStream() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if c.Stream.GroupID == "" {
		return fmt.Errorf("stream group_id is required")
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("stream max_retries must be non-negative")
	}
	if c.Stream.InitialBackoffMs < 1 {
		return fmt.Errorf("stream initial_backoff_ms must be at least 1")
	}
	if c.Stream.MaxBackoffMs < c.Stream.InitialBackoffMs {
		return fmt.Errorf("stream max_backoff_ms must be >= initial_backoff_ms")
	}
	return nil
}

func (c *Config) validateBroker() error {
	if len(c.Stream.Brokers) == 0 {
		return fmt.Errorf("at least one stream broker is required")
	}
	if c.Stream.Topic == "" {
		return fmt.Errorf("stream topic is required")
	}
	return nil
}

// ValidateGenerate checks configuration required for the generate command.
func (c *Config) ValidateGenerate() error {
	g := c.Generate
	if g.Customers < 1 || g.Products < 1 || g.Stores < 1 {
		return fmt.Errorf("customers, products and stores must be at least 1")
	}
	if g.Days < 1 {
		return fmt.Errorf("days must be at least 1")
	}
	if g.Orders < 0 {
		return fmt.Errorf("orders must be non-negative")
	}
	if g.InvalidRatio < 0 || g.InvalidRatio > 1 {
		return fmt.Errorf("invalid_ratio must be between 0 and 1")
	}
	if _, err := time.Parse(DateLayout, g.Start); err != nil {
		return fmt.Errorf("generate start must be a date (YYYY-MM-DD): %w", err)
	}
	if g.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if g.Publish {
		return c.validateBroker()
	}
	return nil
}

// ValidateQuery checks configuration required for the query workload.
func (c *Config) ValidateQuery() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Sink == SinkNone {
		return fmt.Errorf("queries need a postgres or duckdb sink")
	}
	if c.Query.Workers < 1 {
		return fmt.Errorf("query workers must be at least 1")
	}
	if c.Query.Duration < 0 {
		return fmt.Errorf("query duration must be non-negative")
	}
	return nil
}

// AsOf returns the default change date of dimension rows; the zero time
// when unset.
func (c *Config) AsOf() (time.Time, error) {
	if c.Load.AsOf == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, c.Load.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("load as_of must be a date (YYYY-MM-DD): %w", err)
	}
	return t, nil
}

// InitialBackoff returns the first stream retry delay.
func (s StreamConfig) InitialBackoff() time.Duration {
	return time.Duration(s.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the stream retry delay cap.
func (s StreamConfig) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffMs) * time.Millisecond
}

// TTL returns the claim expiry of the dedupe guard.
func (d DedupeConfig) TTL() time.Duration {
	return time.Duration(d.TTLHours) * time.Hour
}
