package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeChallenge, cfg.Mode)
	assert.Equal(t, 15*time.Second, cfg.GracePeriod)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "bot.db", cfg.SQLitePath)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "gatekeeper.audit", cfg.KafkaAuditTopic)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.False(t, cfg.AdminEnabled())
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOT_TOKEN=from-file\nGATEKEEPER_MODE=mass_verify\nKAFKA_BROKERS=\"a:9092, b:9092,a:9092,\"\n"), 0o600))
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")
	t.Setenv("GATEKEEPER_MODE", "")
	os.Unsetenv("GATEKEEPER_MODE")
	t.Setenv("KAFKA_BROKERS", "")
	os.Unsetenv("KAFKA_BROKERS")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMassVerify, cfg.Mode)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	base := Config{Mode: ModeChallenge, StoreDriver: StoreSQLite, GracePeriod: time.Second, CallTimeout: time.Second}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "ban" }, wantErr: "GATEKEEPER_MODE"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mysql" }, wantErr: "STORE_DRIVER"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres }, wantErr: "DATABASE_URL"},
		{name: "redis without url", mutate: func(c *Config) { c.StoreDriver = StoreRedis }, wantErr: "REDIS_URL"},
		{name: "zero grace period", mutate: func(c *Config) { c.GracePeriod = 0 }, wantErr: "GRACE_PERIOD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
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
