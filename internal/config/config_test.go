package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  dsn: postgres://localhost/authgate
auth:
  token_secret: s3cret
  encryption_key: `+validKey+`
  refresh_ttl: 30d
providers:
  google:
    client_id: cid
    client_secret: csecret
    redirect_url: https://svc.example/v1/oauth/google/callback
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Cache.Kind)
	require.Equal(t, time.Hour, cfg.Auth.AccessTTL.Std())
	require.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL.Std())
	require.Equal(t, 10*time.Minute, cfg.Auth.StateTTL.Std())
	require.Equal(t, "cid", cfg.Providers["google"].ClientID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("AUTH_ACCESS_TTL", "30m")
	path := writeConfig(t, `
server:
  addr: ":8080"
storage:
  dsn: postgres://localhost/authgate
auth:
  token_secret: s3cret
  encryption_key: `+validKey+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL.Std())
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("STORAGE_DSN", "postgres://localhost/authgate")
	t.Setenv("AUTH_TOKEN_SECRET", "s3cret")
	t.Setenv("AUTH_ENCRYPTION_KEY", validKey)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/authgate", cfg.Storage.DSN)
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing token secret", `
storage:
  dsn: postgres://x
auth:
  encryption_key: ` + validKey},
		{"missing encryption key", `
storage:
  dsn: postgres://x
auth:
  token_secret: s`},
		{"short encryption key", `
storage:
  dsn: postgres://x
auth:
  token_secret: s
  encryption_key: abcd`},
		{"non-hex encryption key", `
storage:
  dsn: postgres://x
auth:
  token_secret: s
  encryption_key: zz0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e`},
		{"missing dsn", `
auth:
  token_secret: s
  encryption_key: ` + validKey},
		{"bad cache kind", `
storage:
  dsn: postgres://x
cache:
  kind: memcached
auth:
  token_secret: s
  encryption_key: ` + validKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestParseDuration_DaySuffix(t *testing.T) {
	t.Parallel()
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90d")))
	require.Equal(t, 90*24*time.Hour, d.Std())

	require.NoError(t, d.UnmarshalText([]byte("45m")))
	require.Equal(t, 45*time.Minute, d.Std())

	require.Error(t, d.UnmarshalText([]byte("soon")))
}
