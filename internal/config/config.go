// Package config provides configuration management for the ingestor.
// It handles loading, validation, and access to configuration values
// from a YAML file and environment variables via viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/chuanzhoupan/goingest/internal/logger"
)

// Pool defaults.
const (
	DefaultPoolCount          = 3
	DefaultImage              = "chuanzhoupan/trace_spider:250912"
	DefaultSandboxCodePath    = "/app"
	DefaultDNS                = "172.17.0.1"
	DefaultPrepareParallelism = 20
)

// Capture defaults.
const (
	DefaultExecTimeout       = 100 * time.Minute
	DefaultRetryBudget       = 5
	DefaultRetryBackoff      = 2 * time.Second
	DefaultFirstExecInterval = 1 * time.Second
)

// Source kinds.
const (
	SourceKindCSV = "csv"
	SourceKindDB  = "db"
)

// Source defaults.
const (
	DefaultSourceKind = SourceKindCSV
	DefaultBatchSize  = 1000
)

// Metrics defaults.
const (
	DefaultMetricsAddress = ":9090"
)

// PoolConfig describes the sandbox pool.
type PoolConfig struct {
	// Prefix names the sandboxes: <prefix>0 .. <prefix>N-1.
	Prefix string `yaml:"prefix"`
	// Count is the pool size and the concurrency bound.
	Count int `yaml:"count"`
	// Image is the sandbox image reference.
	Image string `yaml:"image"`
	// HostCodePath is the host directory bind-mounted into each sandbox.
	HostCodePath string `yaml:"host_code_path"`
	// ToolsPath is the shared tools directory bind-mounted into each sandbox.
	ToolsPath string `yaml:"tools_path"`
	// SandboxCodePath is the mount point inside the sandbox.
	SandboxCodePath string `yaml:"sandbox_code_path"`
	// DNS overrides the sandbox resolver (host dnsmasq by default).
	DNS string `yaml:"dns"`
	// Privileged is required for packet capture inside the sandbox.
	Privileged bool `yaml:"privileged"`
	// TTY allocates a pseudo-terminal on create.
	TTY bool `yaml:"tty"`
	// PrepareParallelism bounds concurrent existence checks and creates.
	PrepareParallelism int `yaml:"prepare_parallelism"`
}

// CaptureConfig describes per-job execution policy.
type CaptureConfig struct {
	// ExecTimeout is the hard wall-clock limit for one unit of work.
	ExecTimeout time.Duration `yaml:"exec_timeout"`
	// RetryBudget is the number of re-attempts after the first failure.
	RetryBudget int `yaml:"retry_budget"`
	// RetryBackoff is the fixed sleep before re-enqueueing a failed job.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// FirstExecInterval spaces out each sandbox's first dispatch.
	FirstExecInterval time.Duration `yaml:"first_exec_interval"`
}

// StoreConfig describes the artifact destination tree.
type StoreConfig struct {
	// BaseDst is the root of the kind/date/domain partitioned store.
	BaseDst string `yaml:"base_dst"`
}

// TableMapping binds a source table to the logical domain of its URLs.
type TableMapping struct {
	Table  string `yaml:"table"`
	Domain string `yaml:"domain"`
}

// SourceConfig selects and parameterizes the job source.
type SourceConfig struct {
	// Kind is "csv" or "db".
	Kind string `yaml:"kind"`
	// CSVPath is the job table for the csv source.
	CSVPath string `yaml:"csv_path"`
	// BatchSize caps jobs fetched per batch from the db source.
	BatchSize int `yaml:"batch_size"`
	// Tables lists table/domain pairs for the db source.
	Tables []TableMapping `yaml:"tables"`
}

// DatabaseConfig holds connection settings for the db source.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Config represents the application configuration.
type Config struct {
	Pool     PoolConfig     `yaml:"pool"`
	Capture  CaptureConfig  `yaml:"capture"`
	Store    StoreConfig    `yaml:"store"`
	Source   SourceConfig   `yaml:"source"`
	Database DatabaseConfig `yaml:"database"`
	Logging  logger.Config  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// Load builds a Config from viper, applying defaults for unset keys.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Pool: PoolConfig{
			Prefix:             getString(v, "pool.prefix", HostIdentityFromEnv().Username+"_traffic_capture_"),
			Count:              getInt(v, "pool.count", DefaultPoolCount),
			Image:              getString(v, "pool.image", DefaultImage),
			HostCodePath:       v.GetString("pool.host_code_path"),
			ToolsPath:          v.GetString("pool.tools_path"),
			SandboxCodePath:    getString(v, "pool.sandbox_code_path", DefaultSandboxCodePath),
			DNS:                getString(v, "pool.dns", DefaultDNS),
			Privileged:         getBool(v, "pool.privileged", true),
			TTY:                getBool(v, "pool.tty", true),
			PrepareParallelism: getInt(v, "pool.prepare_parallelism", DefaultPrepareParallelism),
		},
		Capture: CaptureConfig{
			ExecTimeout:       getDuration(v, "capture.exec_timeout", DefaultExecTimeout),
			RetryBudget:       getInt(v, "capture.retry_budget", DefaultRetryBudget),
			RetryBackoff:      getDuration(v, "capture.retry_backoff", DefaultRetryBackoff),
			FirstExecInterval: getDuration(v, "capture.first_exec_interval", DefaultFirstExecInterval),
		},
		Store: StoreConfig{
			BaseDst: v.GetString("store.base_dst"),
		},
		Source: SourceConfig{
			Kind:      getString(v, "source.kind", DefaultSourceKind),
			CSVPath:   v.GetString("source.csv_path"),
			BatchSize: getInt(v, "source.batch_size", DefaultBatchSize),
		},
		Database: DatabaseConfig{
			Host:     getString(v, "database.host", "localhost"),
			Port:     getString(v, "database.port", "5432"),
			User:     getString(v, "database.user", "postgres"),
			Password: v.GetString("database.password"),
			DBName:   getString(v, "database.dbname", "traffic"),
			SSLMode:  getString(v, "database.sslmode", "disable"),
		},
		Logging: logger.Config{
			Level:       logger.Level(getString(v, "logging.level", "info")),
			Development: v.GetBool("logging.development"),
			Encoding:    getString(v, "logging.encoding", "console"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Address: getString(v, "metrics.address", DefaultMetricsAddress),
		},
	}

	if err := v.UnmarshalKey("source.tables", &cfg.Source.Tables); err != nil {
		return nil, fmt.Errorf("failed to parse source.tables: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for a capture run.
func (c *Config) Validate() error {
	if c.Pool.Count < 1 {
		return errors.New("pool count must be at least 1")
	}
	if c.Pool.Prefix == "" {
		return errors.New("pool prefix cannot be empty")
	}
	if c.Pool.HostCodePath == "" {
		return errors.New("pool host_code_path is required")
	}
	if c.Pool.PrepareParallelism < 1 {
		return errors.New("pool prepare_parallelism must be at least 1")
	}
	if c.Store.BaseDst == "" {
		return errors.New("store base_dst is required")
	}
	if c.Capture.ExecTimeout <= 0 {
		return errors.New("capture exec_timeout must be positive")
	}
	if c.Capture.RetryBudget < 0 {
		return errors.New("capture retry_budget cannot be negative")
	}
	if c.Capture.RetryBackoff < 0 {
		return errors.New("capture retry_backoff cannot be negative")
	}
	if c.Capture.FirstExecInterval < 0 {
		return errors.New("capture first_exec_interval cannot be negative")
	}
	switch c.Source.Kind {
	case SourceKindCSV:
		if c.Source.CSVPath == "" {
			return errors.New("source csv_path is required for the csv source")
		}
	case SourceKindDB:
		if len(c.Source.Tables) == 0 {
			return errors.New("source tables are required for the db source")
		}
		if c.Source.BatchSize < 1 {
			return errors.New("source batch_size must be at least 1")
		}
	default:
		return fmt.Errorf("unknown source kind: %q", c.Source.Kind)
	}
	return nil
}

func getString(v *viper.Viper, key, fallback string) string {
	if val := v.GetString(key); val != "" {
		return val
	}
	return fallback
}

func getInt(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return fallback
}

func getBool(v *viper.Viper, key string, fallback bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return fallback
}

func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	return fallback
}
