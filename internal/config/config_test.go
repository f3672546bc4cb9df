package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("Expected LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.Sink != SinkPostgres {
		t.Errorf("Expected Sink '%s', got '%s'", SinkPostgres, cfg.Sink)
	}
	if cfg.Load.Workers != 4 {
		t.Errorf("Expected Load.Workers 4, got %d", cfg.Load.Workers)
	}
	if !cfg.Load.Hydrate {
		t.Error("Expected Load.Hydrate to default to true")
	}
	if cfg.Stream.Topic != "sales-facts" {
		t.Errorf("Expected Stream.Topic 'sales-facts', got '%s'", cfg.Stream.Topic)
	}
	if cfg.Stream.InitialBackoff() != 200*time.Millisecond {
		t.Errorf("Expected initial backoff 200ms, got %v", cfg.Stream.InitialBackoff())
	}
	if cfg.Generate.Profile != "store-regional" {
		t.Errorf("Expected Generate.Profile 'store-regional', got '%s'", cfg.Generate.Profile)
	}
	if cfg.Query.ReportInterval != 30 {
		t.Errorf("Expected Query.ReportInterval 30, got %d", cfg.Query.ReportInterval)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "postgres sink without connection",
			modify:  func(c *Config) {},
			wantErr: true,
		},
		{
			name:    "postgres sink with connection",
			modify:  func(c *Config) { c.Connection = "postgres://localhost/test" },
			wantErr: false,
		},
		{
			name:    "duckdb sink needs no connection",
			modify:  func(c *Config) { c.Sink = SinkDuckDB },
			wantErr: false,
		},
		{
			name:    "unknown sink",
			modify:  func(c *Config) { c.Sink = "parquet" },
			wantErr: true,
		},
		{
			name: "negative dedupe ttl",
			modify: func(c *Config) {
				c.Sink = SinkNone
				c.Dedupe.TTLHours = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateInit(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateInit(); err == nil {
		t.Error("Expected error without connection")
	}
	cfg.Connection = "postgres://localhost/test"
	if err := cfg.ValidateInit(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestConfigValidateLoad(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Load.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "valid as_of",
			modify:  func(c *Config) { c.Load.AsOf = "2024-06-01" },
			wantErr: false,
		},
		{
			name:    "bad as_of",
			modify:  func(c *Config) { c.Load.AsOf = "06/01/2024" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sink = SinkNone
			tt.modify(cfg)
			err := cfg.ValidateLoad()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLoad() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAsOf(t *testing.T) {
	cfg := DefaultConfig()

	asOf, err := cfg.AsOf()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !asOf.IsZero() {
		t.Errorf("Expected zero as_of when unset, got %v", asOf)
	}

	cfg.Load.AsOf = "2024-06-01"
	asOf, err = cfg.AsOf()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !asOf.Equal(want) {
		t.Errorf("Expected %v, got %v", want, asOf)
	}
}

func TestConfigValidateStream(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "no brokers",
			modify:  func(c *Config) { c.Stream.Brokers = nil },
			wantErr: true,
		},
		{
			name:    "no topic",
			modify:  func(c *Config) { c.Stream.Topic = "" },
			wantErr: true,
		},
		{
			name:    "no group",
			modify:  func(c *Config) { c.Stream.GroupID = "" },
			wantErr: true,
		},
		{
			name:    "negative retries",
			modify:  func(c *Config) { c.Stream.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "max backoff below initial",
			modify:  func(c *Config) { c.Stream.MaxBackoffMs = 100 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sink = SinkNone
			tt.modify(cfg)
			err := cfg.ValidateStream()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStream() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateGenerate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "no customers",
			modify:  func(c *Config) { c.Generate.Customers = 0 },
			wantErr: true,
		},
		{
			name:    "invalid ratio above one",
			modify:  func(c *Config) { c.Generate.InvalidRatio = 1.5 },
			wantErr: true,
		},
		{
			name:    "bad start",
			modify:  func(c *Config) { c.Generate.Start = "March" },
			wantErr: true,
		},
		{
			name: "publish without topic",
			modify: func(c *Config) {
				c.Generate.Publish = true
				c.Stream.Topic = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.ValidateGenerate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGenerate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateQuery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink = SinkNone
	if err := cfg.ValidateQuery(); err == nil {
		t.Error("Expected error for the none sink")
	}

	cfg.Sink = SinkDuckDB
	if err := cfg.ValidateQuery(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg.Query.Workers = 0
	if err := cfg.ValidateQuery(); err == nil {
		t.Error("Expected error for zero workers")
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
connection: "postgres://user@localhost/testdb"
log_level: "debug"
sink: "duckdb"
duckdb_path: "/tmp/sales.duckdb"
load:
  as_of: "2024-06-01"
  workers: 8
  hydrate: false
stream:
  brokers:
    - "kafka-1:9092"
    - "kafka-2:9092"
  topic: "pos-facts"
  max_retries: 3
dedupe:
  redis_addr: "localhost:6379"
  ttl_hours: 48
generate:
  customers: 10
  seed: 42
query:
  workers: 2
  queries:
    - "returns_ratio"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Connection != "postgres://user@localhost/testdb" {
		t.Errorf("Connection mismatch: %s", cfg.Connection)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel mismatch: %s", cfg.LogLevel)
	}
	if cfg.Sink != SinkDuckDB {
		t.Errorf("Sink mismatch: %s", cfg.Sink)
	}
	if cfg.DuckDBPath != "/tmp/sales.duckdb" {
		t.Errorf("DuckDBPath mismatch: %s", cfg.DuckDBPath)
	}
	if cfg.Load.AsOf != "2024-06-01" || cfg.Load.Workers != 8 || cfg.Load.Hydrate {
		t.Errorf("Load mismatch: %+v", cfg.Load)
	}
	if len(cfg.Stream.Brokers) != 2 || cfg.Stream.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Stream.Brokers mismatch: %v", cfg.Stream.Brokers)
	}
	if cfg.Stream.Topic != "pos-facts" || cfg.Stream.MaxRetries != 3 {
		t.Errorf("Stream mismatch: %+v", cfg.Stream)
	}
	// Unset keys keep their defaults.
	if cfg.Stream.GroupID != "pgedge-salesdw" {
		t.Errorf("Stream.GroupID mismatch: %s", cfg.Stream.GroupID)
	}
	if cfg.Dedupe.RedisAddr != "localhost:6379" || cfg.Dedupe.TTL() != 48*time.Hour {
		t.Errorf("Dedupe mismatch: %+v", cfg.Dedupe)
	}
	if cfg.Generate.Customers != 10 || cfg.Generate.Seed != 42 || cfg.Generate.Products != 50 {
		t.Errorf("Generate mismatch: %+v", cfg.Generate)
	}
	if cfg.Query.Workers != 2 || len(cfg.Query.Queries) != 1 {
		t.Errorf("Query mismatch: %+v", cfg.Query)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent config file")
	}
}

func TestLoadConfigDefaultPath(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	defer func() { _ = os.Chdir(origDir) }()

	configContent := `sink: "none"`
	if err := os.WriteFile("pgedge-salesdw.yaml", []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sink != SinkNone {
		t.Errorf("Sink mismatch: %s", cfg.Sink)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
