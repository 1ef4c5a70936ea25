// RackBridge Core - rack monitoring gateway middleware
//
// RackBridge ingests telemetry from two incompatible families of rack
// monitoring gateways over MQTT, unifies them into one event model, and
// serves live state, history and commands over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/rackbridge/rackbridge-core/migrations"

	"github.com/rackbridge/rackbridge-core/internal/api"
	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/command"
	"github.com/rackbridge/rackbridge-core/internal/decoder/familyb"
	"github.com/rackbridge/rackbridge-core/internal/decoder/familyj"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/config"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/database"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/logging"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/mqtt"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/tsdb"
	"github.com/rackbridge/rackbridge-core/internal/ingest"
	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/normalizer"
	"github.com/rackbridge/rackbridge-core/internal/persist"
	"github.com/rackbridge/rackbridge-core/internal/push"
	"github.com/rackbridge/rackbridge-core/internal/shadow"
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
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting RackBridge Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	// Open database and run migrations. The database carries history
	// and the persistence buffers; with storage disabled the whole
	// layer is skipped and the API degrades to live views only.
	var db *database.DB
	if cfg.Storage.Enabled {
		db, err = database.Open(ctx, database.Config{
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

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")
	} else {
		log.Info("storage disabled, history and persistence unavailable")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	// Connect to InfluxDB (optional telemetry mirror)
	var tsdbClient *tsdb.Client
	if cfg.TSDB.Enabled {
		tsdbClient, err = tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		tsdbClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.TSDB.URL,
			"org", cfg.TSDB.Org,
			"bucket", cfg.TSDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Internal bus and device shadow
	eventBus := bus.New()
	defer eventBus.Close()
	cache := shadow.New()

	// Error sink: every pipeline stage reports here
	go logErrors(ctx, eventBus, log.Component("errors"))

	// Normalizer: frames in, events and commands out
	nrm := normalizer.New(eventBus, cache, normalizer.Options{
		Workers:          cfg.Normalizer.Workers,
		InboxSize:        cfg.Normalizer.InboxSize,
		WarmupEnabled:    cfg.Normalizer.SmartHeartbeat.Enabled,
		StaggerDelay:     cfg.StaggerDelay(),
		TempHumStaleness: cfg.TempHumStaleness(),
		RFIDStaleness:    cfg.RFIDStaleness(),
		LogNormalized:    cfg.Debug.LogNormalized,
	}, log.Component("normalizer").Logger)
	go nrm.Run(ctx)

	// Watchdog: flips modules offline when heartbeats stop
	watchdog := shadow.NewWatchdog(cache, cfg.HeartbeatTimeout(), cfg.CheckInterval(), log.Component("watchdog").Logger)
	if cfg.Normalizer.StatusEvents {
		watchdog.SetOnOffline(func(entry shadow.TelemetryEntry) {
			nrm.EmitOfflineStatus(entry.DeviceID, entry.Family, entry.ModuleIndex, entry.ModuleID)
		})
	}
	go watchdog.Run(ctx)

	// Command builder: command requests in, downlink publishes out
	builder := command.New(eventBus, mqttClient,
		cfg.Broker.Topics.FamilyBDownload,
		cfg.Broker.Topics.FamilyJDownload,
		log.Component("command").Logger)
	go builder.Run(ctx)

	// Persistence router (storage enabled only)
	var history *persist.History
	if db != nil {
		router := persist.NewRouter(eventBus, db.DB, persist.Options{
			BatchSize:     cfg.Storage.BatchSize,
			FlushInterval: cfg.FlushInterval(),
			WriteTimeout:  cfg.WriteTimeout(),
		}, log.Component("persist").Logger)
		go router.Run(ctx)
		history = persist.NewHistory(db.DB)
	}

	// Telemetry mirror (InfluxDB enabled only)
	if tsdbClient != nil {
		go mirrorTelemetry(ctx, eventBus, tsdbClient)
	}

	// Ingest: subscribe both family uplink roots
	ing := ingest.New(mqttClient, eventBus, cfg.Broker, cfg.Debug, log.Component("ingest").Logger)
	if err := ing.Start(familyb.New(), familyj.New()); err != nil {
		return fmt.Errorf("starting ingest: %w", err)
	}

	// Push stream: normalized events over WebSocket
	pushSrv := push.New(cfg.PushStream, eventBus, log.Component("push").Logger)
	go func() {
		if pushErr := pushSrv.Run(ctx); pushErr != nil {
			log.Error("push stream stopped", "error", pushErr)
		}
	}()

	// Read API
	apiSrv := api.New(api.Deps{
		Config:  cfg,
		Cache:   cache,
		Sender:  builder,
		History: history,
		DB:      healthCheckerOrNil(db),
		Broker:  mqttClient,
		Drops:   eventBus,
		Logger:  log.Component("api").Logger,
		Version: version,
	})
	go func() {
		if apiErr := apiSrv.Start(); apiErr != nil {
			log.Error("api server stopped", "error", apiErr)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if shutdownErr := apiSrv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("api shutdown error", "error", shutdownErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server drain
	// 2. Bus
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database (if enabled)

	log.Info("RackBridge Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RACKBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RACKBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheckerOrNil avoids handing the API a typed-nil interface when
// storage is disabled.
func healthCheckerOrNil(db *database.DB) api.HealthChecker {
	if db == nil {
		return nil
	}
	return db
}

// logErrors drains the error topic so every stage's failures surface in
// one place regardless of which consumers are enabled.
func logErrors(ctx context.Context, b *bus.Bus, log *logging.Logger) {
	sub := b.Subscribe("error-log", bus.TopicError, 256)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			ev, evOK := msg.Payload.(bus.ErrorEvent)
			if !evOK {
				continue
			}
			log.Warn("pipeline error",
				"source", ev.Source,
				"device_id", ev.DeviceID,
				"topic", ev.Topic,
				"detail", ev.Detail,
			)
		}
	}
}

// mirrorTelemetry forwards numeric sensor readings to the time-series
// mirror. Write failures are reported via the client's error callback;
// a write that is dropped here never blocks the pipeline.
func mirrorTelemetry(ctx context.Context, b *bus.Bus, client *tsdb.Client) {
	sub := b.Subscribe("tsdb-mirror", bus.TopicEventNormalized, 512)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			event, evOK := msg.Payload.(model.Event)
			if !evOK {
				continue
			}
			writeEventMetrics(client, event)
		}
	}
}

// writeEventMetrics extracts the numeric readings of one event.
func writeEventMetrics(client *tsdb.Client, event model.Event) {
	for _, p := range event.Payload {
		switch reading := p.(type) {
		case model.TempHumReading:
			if reading.Temp != nil {
				client.WriteSensorReading(event.DeviceID, event.ModuleIndex, "temperature", reading.SensorIndex, *reading.Temp, event.CreatedAt)
			}
			if reading.Hum != nil {
				client.WriteSensorReading(event.DeviceID, event.ModuleIndex, "humidity", reading.SensorIndex, *reading.Hum, event.CreatedAt)
			}
		case model.NoiseReading:
			if reading.Noise != nil {
				client.WriteSensorReading(event.DeviceID, event.ModuleIndex, "noise", reading.SensorIndex, *reading.Noise, event.CreatedAt)
			}
		}
	}
}
