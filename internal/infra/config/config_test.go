package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  address: ":9000"
withings:
  consumerKey: file-key
  intradayDataAvailable: true
transport:
  cacheTtl: 1m
sync:
  enabled: true
  interval: 30m
`), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WITHINGS_CONSUMER_KEY", "env-key")
	t.Setenv("SYNC_LOOKBACK", "12h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTP.Address)
	require.Equal(t, "env-key", cfg.Withings.ConsumerKey)
	require.True(t, cfg.Withings.IntradayDataAvailable)
	require.Equal(t, time.Minute, cfg.Transport.CacheTTL)
	require.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	require.Equal(t, 12*time.Hour, cfg.Sync.Lookback)
	require.Equal(t, "https://wbsapi.withings.net", cfg.Withings.BaseURL)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Accounts.TokenEncryptionKey = "short"
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())
	cfg.Auth.Secret = "s"
	cfg.Auth.Clients = []ClientCredential{{ID: "svc", SecretHash: "$2a$10$hash"}}
	require.NoError(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Archive.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Cache.Redis.Enabled = true
	require.Error(t, cfg.Validate())

	cfg = defaultConfig()
	require.Equal(t, 1024, cfg.Cache.MemoryMaxEntries)
	cfg.Cache.MemoryMaxEntries = -1
	require.Error(t, cfg.Validate())
}
