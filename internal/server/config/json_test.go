package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":             "www.example:9000",
		"database_dsn":                   "vault.db",
		"secret_key":                     "my_secret_key",
		"access_token_validity_duration": "24h",
		"data_dir":                       "/var/lib/vault",
		"chunk_size_hint":                1048576,
		"session_ttl":                    "12h",
		"upload_workers":                 4,
		"share_base_url":                 "https://vault.example",
		"blob_backend":                   "s3",
		"s3_root_user":                   "user",
		"s3_root_password":               "password",
		"s3_bucket":                      "bucket",
		"s3_region":                      "region",
		"s3_base_endpoint":               "base_endpoint",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 24*time.Hour, cfg.AccessTokenValidityDuration)
		assert.Equal(t, "/var/lib/vault", cfg.DataDir)
		assert.Equal(t, int64(1048576), cfg.ChunkSizeHint)
		assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
		assert.Equal(t, 4, cfg.UploadWorkers)
		assert.Equal(t, "https://vault.example", cfg.ShareBaseURL)
		assert.Equal(t, "s3", cfg.BlobBackend)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrHTTP:            "defaults:1234",
			DatabaseDSN:                 "vault.db",
			SecretKey:                   "key",
			AccessTokenValidityDuration: 2 * time.Hour,
			DataDir:                     "./data",
			SessionTTL:                  6 * time.Hour,
			UploadWorkers:               2,
			BlobBackend:                 "local",
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Hour, cfg.AccessTokenValidityDuration)
		assert.Equal(t, "./data", cfg.DataDir)
		assert.Equal(t, 6*time.Hour, cfg.SessionTTL)
		assert.Equal(t, 2, cfg.UploadWorkers)
		assert.Equal(t, "local", cfg.BlobBackend)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
