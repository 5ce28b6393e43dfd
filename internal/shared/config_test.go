package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.API.BaseURL != "http://localhost:8001/api" {
			t.Errorf("expected base url http://localhost:8001/api, got %s", config.API.BaseURL)
		}
		if config.API.RefreshTimeout.Duration != 10*time.Second {
			t.Errorf("expected refresh timeout 10s, got %v", config.API.RefreshTimeout)
		}
		if config.Session.StorageKey != "ems_current_user" {
			t.Errorf("expected storage key ems_current_user, got %s", config.Session.StorageKey)
		}
		if config.Notifications.PollInterval.Duration != 30*time.Second {
			t.Errorf("expected poll interval 30s, got %v", config.Notifications.PollInterval)
		}
		if config.Database.Path != "./ems.db" {
			t.Errorf("expected database path ./ems.db, got %s", config.Database.Path)
		}
		if config.Server.Addr() != "127.0.0.1:3000" {
			t.Errorf("expected addr 127.0.0.1:3000, got %s", config.Server.Addr())
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		t.Run("overrides keep unspecified defaults", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			testConfig := `[api]
base_url = "https://ems.example.com/api"
refresh_timeout = "3s"

[session]
driver = "bolt"
`
			if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			config, err := LoadConfig(configPath)
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}

			if config.API.BaseURL != "https://ems.example.com/api" {
				t.Errorf("expected overridden base url, got %s", config.API.BaseURL)
			}
			if config.API.RefreshTimeout.Duration != 3*time.Second {
				t.Errorf("expected refresh timeout 3s, got %v", config.API.RefreshTimeout)
			}
			if config.Session.Driver != "bolt" {
				t.Errorf("expected bolt driver, got %s", config.Session.Driver)
			}
			if config.Session.StorageKey != "ems_current_user" {
				t.Errorf("expected default storage key to survive, got %s", config.Session.StorageKey)
			}
		})

		t.Run("bad duration", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(configPath, []byte("[api]\ntimeout = \"soon\"\n"), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			if _, err := LoadConfig(configPath); err == nil {
				t.Error("expected error for unparseable duration")
			}
		})

		t.Run("missing file", func(t *testing.T) {
			if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
				t.Error("expected error for missing file")
			}
		})
	})

	t.Run("ApplyEnvFrom", func(t *testing.T) {
		config := DefaultConfig()
		err := ApplyEnvFrom(config, map[string]string{
			"EMS_API_BASE_URL":               "http://api.test",
			"EMS_NOTIFICATIONS_POLL_INTERVAL": "5s",
			"EMS_SERVER_PORT":                "9999",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.API.BaseURL != "http://api.test" {
			t.Errorf("expected env base url, got %s", config.API.BaseURL)
		}
		if config.Notifications.PollInterval.Duration != 5*time.Second {
			t.Errorf("expected 5s poll interval, got %v", config.Notifications.PollInterval)
		}
		if config.Server.Port != 9999 {
			t.Errorf("expected port 9999, got %d", config.Server.Port)
		}

		t.Run("invalid value", func(t *testing.T) {
			err := ApplyEnvFrom(DefaultConfig(), map[string]string{"EMS_SERVER_PORT": "many"})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}
