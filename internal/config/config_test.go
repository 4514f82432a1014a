package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, env, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config."+env+".yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadFromFile(t *testing.T) {
	dir := writeConfig(t, "unit", `
server:
  addr: ":8080"
storage:
  driver: FILE
  path: /tmp/x.json
jwt:
  secret: abc
log:
  level: warn
`)
	cfg, err := LoadFrom("unit", dir)
	require.NoError(t, err)

	assert.Equal(t, "unit", cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Storage.OpTimeout)
	assert.Equal(t, "abc", cfg.JWT.Secret)
	assert.InDelta(t, -6.2088, cfg.Account.DefaultLat, 1e-9)
	assert.InDelta(t, 106.8456, cfg.Account.DefaultLng, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "warpong", cfg.Log.Service)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := writeConfig(t, "unit", "storage:\n  driver: file\n")
	t.Setenv("WARPONG_JWT_SECRET", "from-env")
	t.Setenv("WARPONG_SERVER_ADDR", ":9999")

	cfg, err := LoadFrom("unit", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WARPONG_JWT_SECRET", "s")
	cfg, err := LoadFrom("nope", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown driver": "storage:\n  driver: cassandra\njwt:\n  secret: s\n",
		"empty secret":   "storage:\n  driver: file\n",
		"mysql w/o dsn":  "storage:\n  driver: mysql\njwt:\n  secret: s\n",
		"mongo w/o uri":  "storage:\n  driver: mongo\njwt:\n  secret: s\n",
		"bad ping":       "jwt:\n  secret: s\nrealtime:\n  ping_period: 2m\n",
		"bad log level":  "jwt:\n  secret: s\nlog:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeConfig(t, "unit", body)
			_, err := LoadFrom("unit", dir)
			assert.Error(t, err)
		})
	}
}
