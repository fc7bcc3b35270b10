// Package config loads chartdeck configuration from environment variables
// and an optional YAML file, with struct-tag defaults and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds application configuration. Precedence: environment variables
// (CHARTDECK_*) over config file over struct defaults.
type Config struct {
	APIEndpoint string `mapstructure:"api_endpoint" default:"https://api.chartdeck.aero" validate:"required,url"`

	// DataDir holds the cache database, the encrypted credential store and
	// the device identity. Supports ~ expansion.
	DataDir string `mapstructure:"data_dir" default:"~/.chartdeck" validate:"required"`

	// RenewalInterval is the proactive token renewal period.
	RenewalInterval time.Duration `mapstructure:"renewal_interval" default:"1h" validate:"gt=0"`

	// StartupTimeout bounds the startup validation chain and the rollover
	// check; past it the app continues on the degraded path.
	StartupTimeout time.Duration `mapstructure:"startup_timeout" default:"5s" validate:"gt=0"`

	// RequestTimeout bounds a single backend call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"30s" validate:"gt=0"`

	LogLevel string `mapstructure:"log_level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Load reads configuration from the optional file and the environment.
func Load() (*Config, error) {
	cfg := Config{}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CHARTDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".chartdeck"))
	}

	for _, key := range []string{"api_endpoint", "data_dir", "renewal_interval", "startup_timeout", "request_timeout", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// ResolvedDataDir expands ~ in DataDir.
func (c *Config) ResolvedDataDir() (string, error) {
	dir := c.DataDir
	if len(dir) >= 2 && dir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return dir, nil
}

// CacheDir returns the cache database directory under DataDir.
func (c *Config) CacheDir() (string, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache"), nil
}

// EnsureDeviceID loads the persisted device identifier, generating and
// persisting a fresh UUID on first run. The device ID accompanies the
// credential exchange so the backend can scope refresh tokens per device.
func (c *Config) EnsureDeviceID() (string, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(dir, "device_id")
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
		// Corrupt file: regenerate below.
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
