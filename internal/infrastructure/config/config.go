package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Polling defaults. These mirror the behaviour of the Shelly firmware:
// a sleeping device reports once per sleep period, an always-on device pushes
// CoIoT updates on its own report period, and RPC (gen2) devices hold a
// persistent connection that only needs a periodic reconnect check.
const (
	// DefaultSleepMultiplier scales a device's sleep period into a poll
	// interval. A sleeping device that misses one wake window (plus 20%
	// slack) is considered unavailable.
	DefaultSleepMultiplier = 1.2

	// DefaultUpdateMultiplier scales an always-on block device's
	// self-reported update period into a poll interval.
	DefaultUpdateMultiplier = 2.2

	// DefaultReconnectIntervalSeconds is how often the RPC coordinator
	// checks connectivity and attempts a reconnect.
	DefaultReconnectIntervalSeconds = 60

	// DefaultStatusIntervalSeconds is the supplementary status poll interval
	// for connected devices (both generations).
	DefaultStatusIntervalSeconds = 60

	// DefaultIOTimeoutSeconds bounds every single device operation
	// (status fetch, initialize, OTA trigger).
	DefaultIOTimeoutSeconds = 10

	// DefaultBlockPollTimeoutSeconds bounds the full settings+status fetch
	// of a block device, which hits several REST endpoints.
	DefaultBlockPollTimeoutSeconds = 18

	// DefaultReloadCooldownSeconds is the quiet period the reload debouncer
	// waits after the last config-changed signal before reinitialising a
	// device.
	DefaultReloadCooldownSeconds = 60
)

// Config is the root configuration structure for the Shelly bridge.
// All configuration is loaded from YAML and can be overridden by environment
// variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Polling  PollingConfig  `yaml:"polling"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// BridgeConfig contains bridge-level identity settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in MQTT topics and health messages.
	ID string `yaml:"id"`
}

// DatabaseConfig contains SQLite database settings for the device registry.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP admin API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for poll metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PollingConfig contains the coordinator scheduling knobs.
// The defaults match Shelly firmware behaviour and rarely need changing.
type PollingConfig struct {
	// SleepMultiplier scales a sleeping device's sleep period into its
	// poll interval.
	SleepMultiplier float64 `yaml:"sleep_multiplier"`

	// UpdateMultiplier scales an always-on block device's self-reported
	// update period into its poll interval.
	UpdateMultiplier float64 `yaml:"update_multiplier"`

	// ReconnectInterval is the RPC reconnect check interval (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`

	// StatusInterval is the supplementary status poll interval (seconds).
	StatusInterval int `yaml:"status_interval"`

	// IOTimeout bounds single device operations (seconds).
	IOTimeout int `yaml:"io_timeout"`

	// BlockPollTimeout bounds the full block device fetch (seconds).
	BlockPollTimeout int `yaml:"block_poll_timeout"`

	// ReloadCooldown is the reload debounce quiet period (seconds).
	ReloadCooldown int `yaml:"reload_cooldown"`
}

// DeviceConfig describes one Shelly device managed by this bridge.
type DeviceConfig struct {
	// ID is the bridge-local device identifier used in MQTT topics.
	// Must be unique within the bridge (e.g. "shelly-hallway-button").
	ID string `yaml:"id"`

	// Name is the human-readable device name.
	Name string `yaml:"name"`

	// Host is the device's IP address or hostname.
	Host string `yaml:"host"`

	// Generation selects the device protocol: 1 (block/CoIoT) or 2 (RPC).
	Generation int `yaml:"generation"`

	// Model is the Shelly model identifier (e.g. "SHSW-25", "SHBTN-1").
	Model string `yaml:"model"`

	// SleepPeriod is the device's configured sleep period in seconds.
	// Zero or absent means the device is not sleep-capable and is polled
	// actively.
	SleepPeriod int `yaml:"sleep_period"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHELLYBRIDGE_SECTION_KEY
// For example: SHELLYBRIDGE_DATABASE_PATH, SHELLYBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID: "shelly-bridge-01",
		},
		Database: DatabaseConfig{
			Path:        "./data/shellybridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-shelly",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8087,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Polling: PollingConfig{
			SleepMultiplier:   DefaultSleepMultiplier,
			UpdateMultiplier:  DefaultUpdateMultiplier,
			ReconnectInterval: DefaultReconnectIntervalSeconds,
			StatusInterval:    DefaultStatusIntervalSeconds,
			IOTimeout:         DefaultIOTimeoutSeconds,
			BlockPollTimeout:  DefaultBlockPollTimeoutSeconds,
			ReloadCooldown:    DefaultReloadCooldownSeconds,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern:
// SHELLYBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHELLYBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SHELLYBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHELLYBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHELLYBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SHELLYBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("SHELLYBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Polling.SleepMultiplier <= 0 {
		errs = append(errs, "polling.sleep_multiplier must be positive")
	}
	if c.Polling.UpdateMultiplier <= 0 {
		errs = append(errs, "polling.update_multiplier must be positive")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if dev.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[dev.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, dev.ID))
		} else {
			seen[dev.ID] = true
		}
		if dev.Host == "" {
			errs = append(errs, prefix+".host is required")
		}
		if dev.Generation != 1 && dev.Generation != 2 {
			errs = append(errs, prefix+".generation must be 1 or 2")
		}
		if dev.SleepPeriod < 0 {
			errs = append(errs, prefix+".sleep_period must not be negative")
		}
		if dev.Generation == 2 && dev.SleepPeriod > 0 {
			errs = append(errs, prefix+": sleep_period is only supported on generation 1 devices")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetIOTimeout returns the per-operation device I/O timeout as a Duration.
func (c *PollingConfig) GetIOTimeout() time.Duration {
	return time.Duration(c.IOTimeout) * time.Second
}

// GetBlockPollTimeout returns the block device full-poll timeout as a Duration.
func (c *PollingConfig) GetBlockPollTimeout() time.Duration {
	return time.Duration(c.BlockPollTimeout) * time.Second
}

// GetReconnectInterval returns the RPC reconnect check interval as a Duration.
func (c *PollingConfig) GetReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Second
}

// GetStatusInterval returns the supplementary status poll interval as a Duration.
func (c *PollingConfig) GetStatusInterval() time.Duration {
	return time.Duration(c.StatusInterval) * time.Second
}

// GetReloadCooldown returns the reload debounce quiet period as a Duration.
func (c *PollingConfig) GetReloadCooldown() time.Duration {
	return time.Duration(c.ReloadCooldown) * time.Second
}
