package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  id: "test-bridge"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8087
devices:
  - id: "shelly-hallway"
    name: "Hallway Dimmer"
    host: "192.168.1.40"
    generation: 1
    model: "SHDM-2"
  - id: "shelly-porch"
    host: "192.168.1.41"
    generation: 2
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "test-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-bridge")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[1].Generation != 2 {
		t.Errorf("Devices[1].Generation = %d, want 2", cfg.Devices[1].Generation)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_PollingDefaults(t *testing.T) {
	content := `
bridge:
  id: "test-bridge"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Polling.SleepMultiplier != DefaultSleepMultiplier {
		t.Errorf("SleepMultiplier = %v, want %v", cfg.Polling.SleepMultiplier, DefaultSleepMultiplier)
	}
	if cfg.Polling.UpdateMultiplier != DefaultUpdateMultiplier {
		t.Errorf("UpdateMultiplier = %v, want %v", cfg.Polling.UpdateMultiplier, DefaultUpdateMultiplier)
	}
	if got := cfg.Polling.GetIOTimeout(); got != 10*time.Second {
		t.Errorf("GetIOTimeout() = %v, want 10s", got)
	}
	if got := cfg.Polling.GetBlockPollTimeout(); got != 18*time.Second {
		t.Errorf("GetBlockPollTimeout() = %v, want 18s", got)
	}
	if got := cfg.Polling.GetReloadCooldown(); got != 60*time.Second {
		t.Errorf("GetReloadCooldown() = %v, want 60s", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
bridge:
  id: "test-bridge"
mqtt:
  broker:
    host: "file-host"
`
	t.Setenv("SHELLYBRIDGE_MQTT_HOST", "env-host")
	t.Setenv("SHELLYBRIDGE_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-host" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "env-host")
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/env.db")
	}
}

func TestValidate_DeviceErrors(t *testing.T) {
	tests := []struct {
		name    string
		devices []DeviceConfig
		wantErr bool
	}{
		{
			name: "valid gen1 sleeper",
			devices: []DeviceConfig{
				{ID: "d1", Host: "10.0.0.1", Generation: 1, SleepPeriod: 3600},
			},
			wantErr: false,
		},
		{
			name: "missing id",
			devices: []DeviceConfig{
				{Host: "10.0.0.1", Generation: 1},
			},
			wantErr: true,
		},
		{
			name: "duplicate id",
			devices: []DeviceConfig{
				{ID: "d1", Host: "10.0.0.1", Generation: 1},
				{ID: "d1", Host: "10.0.0.2", Generation: 1},
			},
			wantErr: true,
		},
		{
			name: "missing host",
			devices: []DeviceConfig{
				{ID: "d1", Generation: 2},
			},
			wantErr: true,
		},
		{
			name: "bad generation",
			devices: []DeviceConfig{
				{ID: "d1", Host: "10.0.0.1", Generation: 3},
			},
			wantErr: true,
		},
		{
			name: "sleep period on gen2",
			devices: []DeviceConfig{
				{ID: "d1", Host: "10.0.0.1", Generation: 2, SleepPeriod: 3600},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Devices = tt.devices
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
