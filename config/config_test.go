package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 10, cfg.Pipeline.LowInventoryThreshold)
	assert.Equal(t, 3, cfg.Publisher.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Publisher.BackoffBase)
	assert.Equal(t, 2.0, cfg.Publisher.BackoffMultiplier)
	assert.Equal(t, 5*time.Second, cfg.Publisher.SendTimeout)
	assert.Equal(t, 1024, cfg.Dispatch.QueueSize)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, "product-events", cfg.Messaging.Topic)
	assert.True(t, cfg.Breaker.Enabled)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
environment: production
messaging:
  driver: memory
  topic: catalog-events
pipeline:
  low_inventory_threshold: 25
publisher:
  max_attempts: 5
  backoff_base: 1s
dispatch:
  workers: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "memory", cfg.Messaging.Driver)
	assert.Equal(t, "catalog-events", cfg.Messaging.Topic)
	assert.Equal(t, 25, cfg.Pipeline.LowInventoryThreshold)
	assert.Equal(t, 5, cfg.Publisher.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Publisher.BackoffBase)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	// untouched keys keep their defaults
	assert.Equal(t, 1024, cfg.Dispatch.QueueSize)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CATALOG_PUBLISHER_MAX_ATTEMPTS", "7")
	t.Setenv("CATALOG_PIPELINE_LOW_INVENTORY_THRESHOLD", "3")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Publisher.MaxAttempts)
	assert.Equal(t, 3, cfg.Pipeline.LowInventoryThreshold)
}

func TestLoadConfigRejectsInvalidPipeline(t *testing.T) {
	t.Setenv("CATALOG_DISPATCH_WORKERS", "0")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch.workers")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Pipeline:  PipelineConfig{LowInventoryThreshold: 10},
			Publisher: PublisherConfig{MaxAttempts: 3, BackoffBase: time.Second, BackoffMultiplier: 2, SendTimeout: time.Second},
			Dispatch:  DispatchConfig{QueueSize: 1, Workers: 1},
			Messaging: MessagingConfig{Driver: "memory", Topic: "t"},
			Jobs:      JobsConfig{StatsInterval: time.Minute},
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"negative threshold":      func(c *Config) { c.Pipeline.LowInventoryThreshold = -1 },
		"zero attempts":           func(c *Config) { c.Publisher.MaxAttempts = 0 },
		"shrinking backoff":       func(c *Config) { c.Publisher.BackoffMultiplier = 0.5 },
		"negative max backoff":    func(c *Config) { c.Publisher.MaxBackoff = -time.Second },
		"no send timeout":         func(c *Config) { c.Publisher.SendTimeout = 0 },
		"empty queue":             func(c *Config) { c.Dispatch.QueueSize = 0 },
		"unknown driver":          func(c *Config) { c.Messaging.Driver = "kafka" },
		"missing topic":           func(c *Config) { c.Messaging.Topic = "" },
		"no stats interval":       func(c *Config) { c.Jobs.StatsInterval = 0 },
		"negative stats interval": func(c *Config) { c.Jobs.StatsInterval = -time.Minute },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfigRejectsZeroStatsInterval(t *testing.T) {
	t.Setenv("CATALOG_JOBS_STATS_INTERVAL", "0s")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs.stats_interval")
}

func TestFormatIndex(t *testing.T) {
	assert.Equal(t, "catalog-products", FormatIndex(ElasticConfig{Prefix: "catalog"}, "products"))
}
