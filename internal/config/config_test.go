package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuanzhoupan/goingest/internal/config"
)

func validConfig() *config.Config {
	v := viper.New()
	v.Set("pool.host_code_path", "/srv/capture/code")
	v.Set("store.base_dst", "/srv/capture/store")
	v.Set("source.csv_path", "jobs.csv")
	cfg, _ := config.Load(v)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("pool.host_code_path", "/srv/capture/code")
	v.Set("store.base_dst", "/srv/capture/store")
	v.Set("source.csv_path", "jobs.csv")

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPoolCount, cfg.Pool.Count)
	assert.Equal(t, config.DefaultImage, cfg.Pool.Image)
	assert.Equal(t, config.DefaultSandboxCodePath, cfg.Pool.SandboxCodePath)
	assert.Equal(t, config.DefaultDNS, cfg.Pool.DNS)
	assert.Equal(t, config.DefaultPrepareParallelism, cfg.Pool.PrepareParallelism)
	assert.Contains(t, cfg.Pool.Prefix, "_traffic_capture_")

	assert.Equal(t, config.DefaultExecTimeout, cfg.Capture.ExecTimeout)
	assert.Equal(t, config.DefaultRetryBudget, cfg.Capture.RetryBudget)
	assert.Equal(t, config.DefaultRetryBackoff, cfg.Capture.RetryBackoff)
	assert.Equal(t, config.DefaultFirstExecInterval, cfg.Capture.FirstExecInterval)

	assert.Equal(t, config.SourceKindCSV, cfg.Source.Kind)
	assert.Equal(t, config.DefaultBatchSize, cfg.Source.BatchSize)
	assert.Equal(t, config.DefaultMetricsAddress, cfg.Metrics.Address)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("pool.prefix", "cap_")
	v.Set("pool.count", 8)
	v.Set("pool.host_code_path", "/srv/capture/code")
	v.Set("store.base_dst", "/srv/capture/store")
	v.Set("capture.exec_timeout", "30m")
	v.Set("capture.retry_budget", 2)
	v.Set("source.kind", "db")
	v.Set("source.batch_size", 50)
	v.Set("source.tables", []map[string]any{
		{"table": "news_content", "domain": "news.example"},
	})
	v.Set("database.host", "db.internal")

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "cap_", cfg.Pool.Prefix)
	assert.Equal(t, 8, cfg.Pool.Count)
	assert.Equal(t, 30*time.Minute, cfg.Capture.ExecTimeout)
	assert.Equal(t, 2, cfg.Capture.RetryBudget)
	assert.Equal(t, config.SourceKindDB, cfg.Source.Kind)
	assert.Equal(t, 50, cfg.Source.BatchSize)
	require.Len(t, cfg.Source.Tables, 1)
	assert.Equal(t, "news_content", cfg.Source.Tables[0].Table)
	assert.Equal(t, "news.example", cfg.Source.Tables[0].Domain)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"zero pool", func(c *config.Config) { c.Pool.Count = 0 }, "pool count"},
		{"empty prefix", func(c *config.Config) { c.Pool.Prefix = "" }, "pool prefix"},
		{"missing code path", func(c *config.Config) { c.Pool.HostCodePath = "" }, "host_code_path"},
		{"zero prepare parallelism", func(c *config.Config) { c.Pool.PrepareParallelism = 0 }, "prepare_parallelism"},
		{"missing base dst", func(c *config.Config) { c.Store.BaseDst = "" }, "base_dst"},
		{"zero timeout", func(c *config.Config) { c.Capture.ExecTimeout = 0 }, "exec_timeout"},
		{"negative budget", func(c *config.Config) { c.Capture.RetryBudget = -1 }, "retry_budget"},
		{"csv without path", func(c *config.Config) { c.Source.CSVPath = "" }, "csv_path"},
		{"db without tables", func(c *config.Config) {
			c.Source.Kind = config.SourceKindDB
			c.Source.Tables = nil
		}, "tables"},
		{"unknown kind", func(c *config.Config) { c.Source.Kind = "queue" }, "source kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHostIdentityFromEnv(t *testing.T) {
	t.Setenv("SUDO_USER", "capture")
	t.Setenv("SUDO_UID", "1001")
	t.Setenv("SUDO_GID", "1002")

	id := config.HostIdentityFromEnv()
	assert.Equal(t, "capture", id.Username)
	assert.Equal(t, 1001, id.UID)
	assert.Equal(t, 1002, id.GID)
}

func TestHostIdentityWithoutSudo(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	t.Setenv("SUDO_UID", "")
	t.Setenv("SUDO_GID", "")
	t.Setenv("USER", "operator")

	id := config.HostIdentityFromEnv()
	assert.Equal(t, "operator", id.Username)
}
