package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/earnings-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.PathEnv, "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "earnings.db", cfg.DB.Path)
	assert.Equal(t, time.Hour, cfg.Scheduler.AdBillingInterval)
	rate, err := cfg.BaseRate()
	require.NoError(t, err)
	assert.Equal(t, "0.1", rate.String())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv(config.PathEnv, "")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("COMMISSION_BASE_RATE", "0.12")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	rate, err := cfg.BaseRate()
	require.NoError(t, err)
	assert.Equal(t, "0.12", rate.String())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 7070
db:
  path: /tmp/test.db
scheduler:
  ad_billing_interval: 15m
`), 0o600))
	t.Setenv(config.PathEnv, path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/test.db", cfg.DB.Path)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.AdBillingInterval)
}

func TestValidate_RejectsBadBaseRate(t *testing.T) {
	t.Setenv(config.PathEnv, "")
	t.Setenv("COMMISSION_BASE_RATE", "1.5")

	_, err := config.Load()
	assert.Error(t, err)
}
