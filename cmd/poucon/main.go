// poucon - Poultry House Safety Automation Core
//
// This is the main entry point for the poucon application. poucon is the
// safety automation core for a single poultry house:
//   - Alarm engine: evaluates sensor/equipment conditions, drives sirens
//   - Interlock engine: cascades stops along equipment dependency chains
//   - HTTP API + WebSocket for operator panels
//
// Sensors and switching hardware are reached through a field-bus adapter
// over MQTT; poucon itself never talks to wire protocols directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/tankwanghow/pou-con-sub006/migrations"

	"github.com/tankwanghow/pou-con-sub006/internal/alarm"
	"github.com/tankwanghow/pou-con-sub006/internal/api"
	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/config"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/database"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/influxdb"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/logging"
	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/mqtt"
	"github.com/tankwanghow/pou-con-sub006/internal/interlock"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
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

// retentionSweepInterval is how often the event log is pruned.
const retentionSweepInterval = 24 * time.Hour

func main() {
	healthCheckFlag := flag.Bool("health-check", false, "probe the running instance and exit")
	flag.Parse()

	if *healthCheckFlag {
		os.Exit(healthCheckProbe())
	}

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting poucon",
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
	log.Info("configuration loaded", "path", configPath, "house", cfg.House.ID)

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

	// Initialise rule registry
	ruleRegistry := rules.NewRegistry(rules.NewSQLiteRepository(db.DB))
	ruleRegistry.SetLogger(log)
	if refreshErr := ruleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading rule registry: %w", refreshErr)
	}
	log.Info("rule registry initialised",
		"alarm_rules", ruleRegistry.AlarmRuleCount(),
		"interlock_rules", ruleRegistry.InterlockRuleCount(),
	)

	// Initialise equipment registry
	equipmentRegistry := equipment.NewRegistry(equipment.NewSQLiteRepository(db.DB))
	equipmentRegistry.SetLogger(log)
	if refreshErr := equipmentRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading equipment registry: %w", refreshErr)
	}
	log.Info("equipment registry initialised", "equipment", equipmentRegistry.EquipmentCount())

	// Event log (audit trail)
	eventLog := events.NewSQLiteRepository(db.DB)

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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Field-bus gateway: the single command/status surface shared by the
	// engines and the API.
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	gateway := equipment.NewGateway(mqttClient, topics, byte(cfg.MQTT.QoS)) // #nosec G115 -- QoS validated to 0..2 by config
	gateway.SetLogger(log)
	if startErr := gateway.Start(); startErr != nil {
		return fmt.Errorf("starting field-bus gateway: %w", startErr)
	}

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

	// Build engines
	alarmEngine := alarm.NewEngine(alarm.Config{
		PollInterval:  time.Duration(cfg.Alarm.PollIntervalMs) * time.Millisecond,
		StatusTimeout: time.Duration(cfg.Alarm.StatusTimeoutMs) * time.Millisecond,
	}, ruleRegistry, gateway, eventLog, log)

	interlockEngine := interlock.NewEngine(interlock.Config{
		RefreshInterval: time.Duration(cfg.Interlock.RefreshIntervalMs) * time.Millisecond,
		StatusTimeout:   time.Duration(cfg.Interlock.StatusTimeoutMs) * time.Millisecond,
	}, ruleRegistry, gateway, eventLog, log)

	if influxClient != nil {
		alarmEngine.SetRecorder(influxClient)
		interlockEngine.SetRecorder(influxClient)
	}

	// Engine events fan out to the bus (for external consumers) and,
	// when the API is enabled, to the WebSocket hub. The hub is created
	// up front so the engines can broadcast transitions even before the
	// API server starts.
	broadcaster := &busBroadcaster{
		bus:        mqttClient,
		topics:     topics,
		qos:        byte(cfg.MQTT.QoS), // #nosec G115 -- QoS validated to 0..2 by config
		log:        log,
		alarms:     alarmEngine,
		interlocks: interlockEngine,
	}
	fanout := &broadcastFanout{sinks: []engineHub{broadcaster}}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		fanout.sinks = append(fanout.sinks, hub)
	}

	alarmEngine.SetHub(fanout)
	interlockEngine.SetHub(fanout)

	// Start engines
	if startErr := alarmEngine.Start(ctx); startErr != nil {
		return fmt.Errorf("starting alarm engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping alarm engine")
		alarmEngine.Stop()
	}()

	if startErr := interlockEngine.Start(ctx); startErr != nil {
		return fmt.Errorf("starting interlock engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping interlock engine")
		interlockEngine.Stop()
	}()

	// Start API server (optional - engines run headless without it)
	if cfg.API.Enabled {
		apiServer, newErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Rules:       ruleRegistry,
			Equipment:   equipmentRegistry,
			Commander:   gateway,
			Alarms:      alarmEngine,
			Interlocks:  interlockEngine,
			Events:      eventLog,
			MQTT:        mqttClient,
			DB:          db,
			ExternalHub: hub,
			Version:     version,
		})
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
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
		log.Info("API server disabled")
	}

	// Event retention sweeper
	if cfg.Events.RetentionDays > 0 {
		go runRetentionSweeper(ctx, eventLog, cfg.Events.RetentionDays, log)
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

	// Deferred calls run in reverse order:
	// 1. API server (stops accepting operator requests)
	// 2. Interlock engine, alarm engine (stop commanding equipment)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("poucon stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses POUCON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("POUCON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
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

	return nil
}

// runRetentionSweeper prunes the event log once a day, keeping
// retentionDays of history. One sweep runs immediately at startup.
func runRetentionSweeper(ctx context.Context, eventLog events.Repository, retentionDays int, log *logging.Logger) {
	sweep := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		pruned, err := eventLog.PruneBefore(ctx, cutoff)
		if err != nil {
			log.Error("event retention sweep failed", "error", err)
			return
		}
		if pruned > 0 {
			log.Info("event retention sweep complete", "pruned", pruned, "cutoff", cutoff)
		}
	}

	sweep()

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}

// engineHub is the broadcast surface both engines expect.
type engineHub interface {
	Broadcast(channel string, payload any)
}

// broadcastFanout forwards each engine event to every sink.
type broadcastFanout struct {
	sinks []engineHub
}

func (f *broadcastFanout) Broadcast(channel string, payload any) {
	for _, s := range f.sinks {
		s.Broadcast(channel, payload)
	}
}

// busBroadcaster republishes engine events on the MQTT bus for external
// consumers (dashboards, SCADA). Each transition goes out on an event
// topic; the matching engine snapshot is published retained so late
// subscribers see current state.
type busBroadcaster struct {
	bus    *mqtt.Client
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger

	alarms     *alarm.Engine
	interlocks *interlock.Engine
}

func (b *busBroadcaster) Broadcast(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("marshalling engine event", "channel", channel, "error", err)
		return
	}

	// Channel names are "alarm.<event_type>" or "interlock.trip".
	eventType := strings.ReplaceAll(channel, ".", "_")
	if after, ok := strings.CutPrefix(channel, "alarm."); ok {
		eventType = after
	}

	if err := b.bus.Publish(b.topics.Event(eventType), data, b.qos, false); err != nil {
		b.log.Warn("publishing engine event", "channel", channel, "error", err)
	}

	switch {
	case strings.HasPrefix(channel, "alarm."):
		if snapshot, err := json.Marshal(b.alarms.Status()); err == nil {
			if pubErr := b.bus.PublishRetained(b.topics.AlarmStatus(), snapshot); pubErr != nil {
				b.log.Warn("publishing alarm status snapshot", "error", pubErr)
			}
		}
	case strings.HasPrefix(channel, "interlock."):
		if snapshot, err := json.Marshal(b.interlocks.Permissions()); err == nil {
			if pubErr := b.bus.PublishRetained(b.topics.InterlockPermissions(), snapshot); pubErr != nil {
				b.log.Warn("publishing interlock permissions snapshot", "error", pubErr)
			}
		}
	}
}

// healthCheckProbe hits the running instance's liveness endpoint.
// Used by container healthchecks: poucon --health-check.
func healthCheckProbe() int {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check: loading config: %v\n", err)
		return 1
	}

	url := fmt.Sprintf("http://%s:%d/healthz", cfg.API.Host, cfg.API.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check: status %d\n", resp.StatusCode)
		return 1
	}
	return 0
}
