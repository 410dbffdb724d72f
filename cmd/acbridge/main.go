// acbridge exposes Broadlink-class air conditioners on an MQTT bus.
//
// Each discovered unit is polled for its status, which is published under
// <prefix>/<capability>/<address>; commands arrive on
// <prefix>/<capability>/<address>/set. An optional HTTP API serves health,
// device state, history and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/ac-mqtt-bridge/migrations"

	"github.com/nerrad567/ac-mqtt-bridge/internal/api"
	"github.com/nerrad567/ac-mqtt-bridge/internal/bridges/aircon"
	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/ac-mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/ac-mqtt-bridge/internal/simulator"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled.
// Deferred cleanup runs in reverse order: API, bridge, MQTT, InfluxDB, database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting acbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"prefix", cfg.MQTT.TopicPrefix,
	)

	// State history (optional)
	var history *device.SQLiteStateHistoryRepository
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		history = device.NewSQLiteStateHistoryRepository(db.DB)
	} else {
		log.Info("state history disabled")
	}

	// Telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	router := aircon.NewRouter(cfg.MQTT.TopicPrefix)
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0..2 by config

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Options{
		Will: &mqtt.Will{
			Topic:    router.AvailabilityTopic(),
			Payload:  aircon.PayloadOffline,
			QoS:      qos,
			Retained: true,
		},
		OnDisconnect: func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		},
		Logger: log,
	})
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
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		"client_id", mqttClient.ClientID(),
	)

	lib := simulator.New(cfg.Discovery.Simulated)
	registry := device.NewRegistry(device.LibraryFactory(lib, cfg.CommandTimeout()))
	registry.SetLogger(log)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	opts := aircon.Options{
		Bus:              mqttClient,
		Library:          lib,
		Registry:         registry,
		Prefix:           cfg.MQTT.TopicPrefix,
		QoS:              qos,
		PollInterval:     cfg.UpdateInterval(),
		DiscoveryTimeout: cfg.DiscoveryTimeout(),
		BindAddress:      cfg.Discovery.BindToIP,
		Diagnostics:      cfg.Bridge.Diagnostics,
		HistoryRetention: cfg.HistoryRetention(),
		Metrics:          aircon.NewMetrics(promRegistry),
		Logger:           log,
	}
	// Interfaces stay nil when the backing store is disabled.
	if history != nil {
		opts.History = history
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	bridge, err := aircon.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	var server *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   bridge,
			Gatherer: promRegistry,
			Version:  version,
		}
		if history != nil {
			deps.History = history
		}
		server, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		bridge.SetObserver(server.Hub())
	}

	mqttClient.SetOnConnect(bridge.HandleConnect)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started", "state", bridge.State().String(), "devices", registry.Len())

	if server != nil {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// openDatabase opens the history database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())
	return db, nil
}
