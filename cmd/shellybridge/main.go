// Gray Logic Shelly Bridge
//
// This is the main entry point for the Shelly protocol bridge. The bridge
// sits between a fleet of Shelly devices (gen1 CoIoT/REST and gen2+
// WebSocket RPC) and the Gray Logic MQTT bus:
//   - Per-device poll scheduling tuned to each device's report cadence
//   - Button click classification and deduplicated event delivery
//   - Debounced device reloads after configuration changes
//   - OTA firmware update triggering
//
// For the MQTT topic contract, see internal/infrastructure/mqtt/topics.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-shelly/migrations"

	"github.com/nerrad567/gray-logic-shelly/internal/api"
	"github.com/nerrad567/gray-logic-shelly/internal/bridge"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Shelly bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry persists identity rows across restarts
	deviceRegistry := registry.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build and start the bridge
	shellyBridge, err := startBridge(ctx, cfg, mqttClient, deviceRegistry, influxClient, log)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		shellyBridge.Stop()
	}()

	// Start admin API (if enabled)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   shellyBridge,
			Registry: deviceRegistry,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("admin API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge (coordinators, health reporter)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Shelly bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHELLYBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHELLYBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Device health surfaces through the bridge's periodic health reports;
	// an unreachable device is "degraded", not a startup failure.

	return nil
}

// startBridge builds the device fleet and starts the protocol bridge.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - mqttClient: Connected MQTT client
//   - deviceRegistry: Device identity persistence
//   - influxClient: Metrics sink (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - *bridge.Bridge: Running bridge
//   - error: If the bridge fails to provision or start
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, deviceRegistry registry.Repository, influxClient *influxdb.Client, log *logging.Logger) (*bridge.Bridge, error) {
	opts := bridge.Options{
		Config:   cfg,
		MQTT:     mqttClient,
		Registry: deviceRegistry,
		Logger:   log,
		Version:  version,
	}

	// Wire metrics only when InfluxDB is up. Assigning a nil *Client to
	// the interface fields would make them non-nil interfaces holding a
	// nil pointer.
	if influxClient != nil {
		opts.Metrics = &pollMetricsAdapter{influx: influxClient}
		opts.Clicks = influxClient
	}

	shellyBridge, err := bridge.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := shellyBridge.ProvisionDevices(); err != nil {
		return nil, fmt.Errorf("provisioning devices: %w", err)
	}
	log.Info("devices provisioned", "count", shellyBridge.DeviceCount())

	if err := shellyBridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("Shelly bridge started")

	return shellyBridge, nil
}

// pollMetricsAdapter adapts the InfluxDB client to the coordinator's
// MetricsRecorder interface. The method names differ:
// - Coordinator records: RecordPoll(deviceID, kind, success, duration)
// - InfluxDB client writes: WritePollMetric(deviceID, kind, success, duration)
type pollMetricsAdapter struct {
	influx *influxdb.Client
}

// RecordPoll implements coordinator.MetricsRecorder.
func (a *pollMetricsAdapter) RecordPoll(deviceID string, kind string, success bool, duration time.Duration) {
	a.influx.WritePollMetric(deviceID, kind, success, duration)
}
