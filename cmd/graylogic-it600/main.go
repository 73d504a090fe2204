// graylogic-it600 bridges a Salus iT600 smart-home gateway onto MQTT.
//
// The daemon polls the gateway's local API on a per-category schedule,
// publishes retained device state to MQTT, executes commands arriving over
// MQTT or REST, records a device inventory in SQLite, and ships poll
// telemetry to InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-it600/migrations"

	"github.com/nerrad567/gray-logic-it600/internal/api"
	"github.com/nerrad567/gray-logic-it600/internal/bridge"
	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-it600/internal/infrastructure/telemetry"
	"github.com/nerrad567/gray-logic-it600/internal/inventory"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
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

// gatewayProbeTimeout bounds the startup reachability probe. The probe is
// warn-only: a dark gateway must not prevent startup, the poller retries
// on its own schedule.
const gatewayProbeTimeout = 5 * time.Second

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
// Components come up in dependency order and tear down in reverse via the
// defer chain. The poll schedules start last so the bridge, recorders, and
// WebSocket hub all observe the very first cycle.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting graylogic-it600",
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
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	// Inventory repository. The recorder that feeds it hooks into the
	// poller further down, once the manager exists.
	invRepo := inventory.NewSQLiteRepository(db.DB)

	// Gateway client
	gw, err := gateway.New(gateway.Config{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		Token:          cfg.Gateway.Token,
		RequestTimeout: cfg.GetRequestTimeout(),
	}, gateway.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating gateway client: %w", err)
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, gatewayProbeTimeout)
	if probeErr := gw.HealthCheck(probeCtx); probeErr != nil {
		log.Warn("gateway unreachable at startup, polling will retry", "error", probeErr)
	} else {
		log.Info("gateway reachable", "host", cfg.Gateway.Host)
	}
	probeCancel()

	// Poll coordinators, one per device category, behind a single manager
	manager, err := buildPoller(cfg, gw, log)
	if err != nil {
		return fmt.Errorf("building poller: %w", err)
	}

	// Command dispatcher, shared by the MQTT bridge and the REST API so
	// both surfaces acknowledge with the same codes
	dispatcher, err := bridge.NewDispatcher(gw, manager)
	if err != nil {
		return fmt.Errorf("creating command dispatcher: %w", err)
	}

	// Connect to MQTT broker with the bridge's LWT registered, so the
	// broker flips the health topic to offline on an unclean disconnect
	mqttClient, err := connectMQTT(cfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Start the MQTT bridge
	br, err := bridge.New(bridge.Options{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		MQTT:           &mqttBridgeAdapter{client: mqttClient},
		Dispatcher:     dispatcher,
		Manager:        manager,
		Gateway:        gw,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()
	log.Info("MQTT bridge started", "bridge_id", cfg.Bridge.ID)

	// Reconnect callbacks. Subscriptions are restored inside the client;
	// health goes out immediately so consumers see the bridge return.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := br.Health().PublishNow(); pubErr != nil {
			log.Error("failed to publish health after reconnect", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(discErr error) {
		log.Warn("MQTT disconnected", "error", discErr)
	})

	// Inventory recorder
	recorder, err := inventory.NewRecorder(invRepo, manager)
	if err != nil {
		return fmt.Errorf("creating inventory recorder: %w", err)
	}
	recorder.SetLogger(log)
	if startErr := recorder.Start(); startErr != nil {
		return fmt.Errorf("starting inventory recorder: %w", startErr)
	}
	defer func() {
		log.Info("stopping inventory recorder")
		recorder.Stop()
	}()
	log.Info("inventory recorder started")

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(writeErr error) {
			log.Error("telemetry write error", "error", writeErr)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)

		telemetryRecorder, recErr := telemetry.NewRecorder(telemetryClient, manager)
		if recErr != nil {
			return fmt.Errorf("creating telemetry recorder: %w", recErr)
		}
		telemetryRecorder.SetLogger(log)
		if startErr := telemetryRecorder.Start(); startErr != nil {
			return fmt.Errorf("starting telemetry recorder: %w", startErr)
		}
		defer func() {
			log.Info("stopping telemetry recorder")
			telemetryRecorder.Stop()
		}()
	} else {
		log.Info("telemetry disabled")
	}

	// Start the REST API and WebSocket hub
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Manager:    manager,
		Dispatcher: dispatcher,
		Gateway:    gw,
		MQTT:       mqttClient,
		Inventory:  invRepo,
		DB:         db,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
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
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the poll schedules last, so every listener registered above
	// observes the first cycle
	manager.Start(ctx)
	defer func() {
		log.Info("stopping poller")
		manager.Stop()
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls unwind in reverse order:
	// 1. Poller (cycles stop producing)
	// 2. API server
	// 3. Telemetry recorder and client (if enabled)
	// 4. Inventory recorder
	// 5. Bridge (publishes stopping health)
	// 6. MQTT
	// 7. Database

	log.Info("graylogic-it600 stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IT600_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IT600_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildPoller constructs one coordinator per device category and wraps them
// in a manager. Both coordinators share the retry budget; interval and
// attempt timeout come from the category's own section.
//
// Parameters:
//   - cfg: Application configuration
//   - gw: Gateway client the coordinators poll
//   - log: Logger instance
//
// Returns:
//   - *poll.Manager: Manager over both category coordinators
//   - error: If a coordinator rejects its configuration
func buildPoller(cfg *config.Config, gw *gateway.Client, log *logging.Logger) (*poll.Manager, error) {
	specs := []struct {
		category device.Category
		settings config.CategoryPollConfig
	}{
		{device.CategoryBinarySensor, cfg.Poller.BinarySensor},
		{device.CategoryClimate, cfg.Poller.Climate},
	}

	coordinators := make([]*poll.Coordinator, 0, len(specs))
	for _, spec := range specs {
		c, err := poll.NewCoordinator(poll.CoordinatorConfig{
			Category: spec.category,
			Gateway:  gw,
			Policy: poll.RetryPolicy{
				MaxAttempts:    cfg.Poller.MaxAttempts,
				AttemptTimeout: spec.settings.GetAttemptTimeout(),
				RetryDelay:     cfg.GetRetryDelay(),
			},
			Interval: spec.settings.GetInterval(),
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s coordinator: %w", spec.category, err)
		}
		coordinators = append(coordinators, c)
	}

	return poll.NewManager(coordinators...)
}

// connectMQTT connects to the broker with the bridge's Last Will and
// Testament registered. The LWT derives from the bridge ID alone, so the
// connection can be established before the bridge itself exists.
//
// Parameters:
//   - cfg: Application configuration
//
// Returns:
//   - *mqtt.Client: Connected MQTT client
//   - error: If the LWT cannot be built or the connection fails
func connectMQTT(cfg *config.Config) (*mqtt.Client, error) {
	payload, err := json.Marshal(bridge.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return nil, fmt.Errorf("marshalling LWT: %w", err)
	}

	return mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Will{
		Topic:    bridge.HealthTopic(),
		Payload:  payload,
		QoS:      1,
		Retained: true,
	}))
}

// healthCheck verifies all infrastructure connections are healthy.
//
// The gateway is deliberately absent: its reachability is probed warn-only
// at startup and tracked by the poller afterwards.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - telemetryClient: Telemetry client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// API server health is verified during Start() - it binds its listener
	// before returning successfully.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
