package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultServerConfig().Validate())
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr []string
	}{
		{
			name:   "s3 source",
			mutate: func(c *ServerConfig) { c.SourceType = SourceTypeS3; c.S3.Bucket = "drops" },
		},
		{
			name: "badger ledger with drift rejection",
			mutate: func(c *ServerConfig) {
				c.LedgerType = LedgerTypeBadger
				c.BadgerPath = "/var/lib/alloc"
				c.RejectRootDrift = true
			},
		},
		{
			name:    "bad port",
			mutate:  func(c *ServerConfig) { c.Port = 70000 },
			wantErr: []string{"port"},
		},
		{
			name:    "local source without dir",
			mutate:  func(c *ServerConfig) { c.RawInputDir = "" },
			wantErr: []string{"rawInputDir"},
		},
		{
			name:    "s3 source without bucket",
			mutate:  func(c *ServerConfig) { c.SourceType = SourceTypeS3 },
			wantErr: []string{"s3.bucket"},
		},
		{
			name:    "unknown source",
			mutate:  func(c *ServerConfig) { c.SourceType = "ftp" },
			wantErr: []string{"sourceType"},
		},
		{
			name:    "refresh interval too short",
			mutate:  func(c *ServerConfig) { c.RefreshInterval = time.Second },
			wantErr: []string{"refreshInterval"},
		},
		{
			name:    "redis ledger without address",
			mutate:  func(c *ServerConfig) { c.LedgerType = LedgerTypeRedis; c.Redis.DB = 16 },
			wantErr: []string{"redis.address", "redis.db"},
		},
		{
			name:    "drift rejection without ledger",
			mutate:  func(c *ServerConfig) { c.RejectRootDrift = true },
			wantErr: []string{"rejectRootDrift"},
		},
		{
			name:    "short admin secret",
			mutate:  func(c *ServerConfig) { c.AdminJWTSecret = "short" },
			wantErr: []string{"adminJwtSecret"},
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *ServerConfig) { c.RateLimit = 10; c.RateBurst = 0 },
			wantErr: []string{"rateBurst"},
		},
		{
			name: "several problems at once",
			mutate: func(c *ServerConfig) {
				c.Port = 0
				c.LedgerType = "sqlite"
			},
			wantErr: []string{"port", "ledgerType"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestServerConfig_SecretNotLeaked(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.AdminJWTSecret = "tiny-secret-value"

	err := cfg.Validate()
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "tiny-secret-value"))
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: 9090
sourceType: s3
s3:
  bucket: allocations
  prefix: mainnet/
  region: eu-west-1
refreshInterval: 5m
ledgerType: redis
redis:
  address: localhost:6379
  db: 2
rateLimit: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, SourceTypeS3, cfg.SourceType)
	assert.Equal(t, "allocations", cfg.S3.Bucket)
	assert.Equal(t, "mainnet/", cfg.S3.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, LedgerTypeRedis, cfg.LedgerType)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 25.0, cfg.RateLimit)
	// Unset fields keep their defaults.
	assert.Equal(t, 50, cfg.RateBurst)
	assert.Equal(t, "raw_input", cfg.RawInputDir)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	_, err = LoadConfigFile(path)
	require.Error(t, err)
}
