package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Values may be overridden by EMS_* environment variables, see [ApplyEnv].
type Config struct {
	API           APIConfig          `toml:"api" envPrefix:"API_"`
	Session       SessionConfig      `toml:"session" envPrefix:"SESSION_"`
	Database      DatabaseConfig     `toml:"database" envPrefix:"DATABASE_"`
	Notifications NotificationConfig `toml:"notifications" envPrefix:"NOTIFICATIONS_"`
	Server        ServerConfig       `toml:"server" envPrefix:"SERVER_"`
	Log           LogConfig          `toml:"log" envPrefix:"LOG_"`
}

// APIConfig describes the remote REST API.
type APIConfig struct {
	BaseURL        string   `toml:"base_url" env:"BASE_URL"`
	Timeout        Duration `toml:"timeout" env:"TIMEOUT"`
	RefreshTimeout Duration `toml:"refresh_timeout" env:"REFRESH_TIMEOUT"`
}

// SessionConfig controls where the identity snapshot is persisted.
type SessionConfig struct {
	StorageKey string `toml:"storage_key" env:"STORAGE_KEY"`
	Driver     string `toml:"driver" env:"DRIVER"`
	BoltPath   string `toml:"bolt_path" env:"BOLT_PATH"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// NotificationConfig contains notification feed polling settings.
type NotificationConfig struct {
	PollInterval Duration `toml:"poll_interval" env:"POLL_INTERVAL"`
	SyncRate     Duration `toml:"sync_rate" env:"SYNC_RATE"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" env:"HOST"`
	Port int    `toml:"port" env:"PORT"`
}

// LogConfig sets the logger verbosity.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
}

// Addr returns the host:port pair the local server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Duration is a [time.Duration] that decodes from strings like "30s" in both TOML and env.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides config values from EMS_* environment variables.
func ApplyEnv(config *Config) error {
	return ApplyEnvFrom(config, nil)
}

// ApplyEnvFrom is [ApplyEnv] reading from the given environment map instead of the process.
func ApplyEnvFrom(config *Config, environ map[string]string) error {
	opts := env.Options{Prefix: "EMS_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Resolve loads the config at path when it exists, falls back to defaults otherwise,
// and applies environment overrides on top.
func Resolve(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
