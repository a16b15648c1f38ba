package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SWRVE_APP_ID", "30512")
	t.Setenv("SWRVE_API_KEY", "key")
	t.Setenv("SWRVE_STACK", "eu")
	t.Setenv("SWRVE_HTTPS_TIMEOUT", "5s")
	t.Setenv("SWRVE_ARCHIVE_ADDRS", "ch1:9000, ch2:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30512, cfg.SDK.AppID)
	assert.Equal(t, StackEU, cfg.SDK.Stack)
	assert.Equal(t, 5*time.Second, cfg.SDK.HTTPSTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SDK.NewSessionInterval)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, cfg.Archive.Addrs)
}

func TestDebugTokenEnablesAuth(t *testing.T) {
	t.Setenv("SWRVE_APP_ID", "1")
	t.Setenv("SWRVE_API_KEY", "key")
	t.Setenv("SWRVE_DEBUG_TOKEN", "s3cret")
	t.Setenv("SWRVE_NETWORK_PROBE_URL", "https://example.com/ping")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
	assert.Equal(t, []string{"/health", "/metrics"}, cfg.Auth.SkipPaths)
	assert.Equal(t, "https://example.com/ping", cfg.Network.ProbeURL)
	assert.Equal(t, 30*time.Second, cfg.Network.ProbeInterval)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swrve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sdk:
  app_id: 7
  api_key: from-file
  auto_show_max_delay: 2s
storage:
  driver: redis
`), 0o600))

	t.Setenv("SWRVE_CONFIG_FILE", path)
	t.Setenv("SWRVE_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.SDK.AppID)
	assert.Equal(t, "from-env", cfg.SDK.APIKey)
	assert.Equal(t, 2*time.Second, cfg.SDK.AutoShowMaxDelay)
	assert.Equal(t, StorageRedis, cfg.Storage.Driver)
	assert.Equal(t, "English", cfg.SDK.Language)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errMsg  string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero app id", mutate: func(c *Config) { c.SDK.AppID = 0 }, wantErr: ErrInvalidAppID},
		{name: "negative app id", mutate: func(c *Config) { c.SDK.AppID = -4 }, wantErr: ErrInvalidAppID},
		{name: "missing api key", mutate: func(c *Config) { c.SDK.APIKey = "" }, errMsg: "SWRVE_API_KEY"},
		{name: "bad stack", mutate: func(c *Config) { c.SDK.Stack = "apac" }, errMsg: "unknown stack"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, errMsg: "unknown storage driver"},
		{name: "auth without token", mutate: func(c *Config) { c.Auth.Enabled = true }, errMsg: "SWRVE_DEBUG_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.SDK.AppID = 1
			c.SDK.APIKey = "k"
			tt.mutate(c)

			err := c.Validate()
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
