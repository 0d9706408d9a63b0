package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vulsim.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "little", cfg.Endian)
	assert.Equal(t, 17995, cfg.Control.Port)
	assert.Equal(t, 17996, cfg.Log.Port)
	assert.Equal(t, 10*time.Second, cfg.Control.Timeout())
	assert.Empty(t, cfg.Etcd.Endpoints)
}

func TestLoadFile(t *testing.T) {
	path := writeTOML(t, `
host = "192.168.1.40"
endian = "big"

[control]
port = 18000
timeout_s = 2.5

[etcd]
endpoints = ["127.0.0.1:2379"]
backend = "sim-lab"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.40", cfg.Host)
	assert.Equal(t, "big", cfg.Endian)
	assert.Equal(t, 18000, cfg.Control.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.Control.Timeout())
	// Unset sections keep their defaults.
	assert.Equal(t, 17996, cfg.Log.Port)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "sim-lab", cfg.Etcd.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeTOML(t, `host = [unclosed`))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTOML(t, `host = "10.0.0.1"`)
	t.Setenv(EnvHost, "10.0.0.2")
	t.Setenv(EnvControlPort, "18100")
	t.Setenv(EnvEndian, "BIG")
	t.Setenv(EnvTimeoutS, "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Host)
	assert.Equal(t, 18100, cfg.Control.Port)
	assert.Equal(t, "big", cfg.Endian) // env value is lowercased
	assert.Equal(t, 3*time.Second, cfg.Control.Timeout())
	assert.Equal(t, 3*time.Second, cfg.Log.Timeout())
}

func TestEnvGarbageIgnored(t *testing.T) {
	t.Setenv(EnvControlPort, "not-a-port")
	t.Setenv(EnvTimeoutS, "-5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 17995, cfg.Control.Port)
	assert.Equal(t, 10*time.Second, cfg.Control.Timeout())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Host = " " }},
		{"bad endian", func(c *Config) { c.Endian = "network" }},
		{"zero control port", func(c *Config) { c.Control.Port = 0 }},
		{"huge log port", func(c *Config) { c.Log.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Control.TimeoutS = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
