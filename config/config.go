// Package config loads tool configuration from TOML with environment
// overrides. The defaults mirror a stock backend install: control on 17995,
// log push on 17996, 10-second socket timeouts, little-endian framing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/meng-cz/vulsim-rpc/protocol"
)

// Environment overrides, applied after the file (file < env < flags).
const (
	EnvHost        = "VULSIM_HOST"
	EnvControlPort = "VULSIM_CONTROL_PORT"
	EnvLogPort     = "VULSIM_LOG_PORT"
	EnvEndian      = "VULSIM_ENDIAN"
	EnvTimeoutS    = "VULSIM_TIMEOUT_S"
)

// Config is the full tool configuration.
type Config struct {
	Host    string        `toml:"host"`
	Endian  string        `toml:"endian"` // "little" or "big"
	Control ChannelConfig `toml:"control"`
	Log     ChannelConfig `toml:"log"`
	Etcd    EtcdConfig    `toml:"etcd"`
}

// ChannelConfig describes one of the two channels. TimeoutS is in seconds,
// matching the backend's own configuration files.
type ChannelConfig struct {
	Port     int     `toml:"port"`
	TimeoutS float64 `toml:"timeout_s"`
}

// Timeout converts the configured seconds to a Duration.
func (c ChannelConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS * float64(time.Second))
}

// EtcdConfig enables backend discovery through etcd instead of a fixed
// host. Empty Endpoints means discovery is off.
type EtcdConfig struct {
	Endpoints []string `toml:"endpoints"`
	Backend   string   `toml:"backend"` // registered backend name to resolve
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Host:    "127.0.0.1",
		Endian:  "little",
		Control: ChannelConfig{Port: 17995, TimeoutS: 10},
		Log:     ChannelConfig{Port: 17996, TimeoutS: 10},
	}
}

// Load reads a TOML file over the defaults, applies environment overrides,
// and validates the result. An empty path skips the file and uses defaults
// plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the clients would refuse anyway, so the
// error surfaces at startup instead of on the first call.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	if _, err := protocol.ParseByteOrder(c.Endian); err != nil {
		return err
	}
	if c.Control.Port <= 0 || c.Control.Port > 65535 {
		return fmt.Errorf("config: invalid control port %d", c.Control.Port)
	}
	if c.Log.Port <= 0 || c.Log.Port > 65535 {
		return fmt.Errorf("config: invalid log port %d", c.Log.Port)
	}
	if c.Control.TimeoutS <= 0 || c.Log.TimeoutS <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvHost)); v != "" {
		cfg.Host = v
	}
	if v, ok := parseIntEnv(EnvControlPort); ok {
		cfg.Control.Port = v
	}
	if v, ok := parseIntEnv(EnvLogPort); ok {
		cfg.Log.Port = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEndian)); v != "" {
		cfg.Endian = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeoutS)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Control.TimeoutS = f
			cfg.Log.TimeoutS = f
		}
	}
}

func parseIntEnv(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
