// orgbd serves RGB lighting controllers to ORGB clients over TCP.
//
// Controllers are defined in the devices section of the config file. Alongside
// the ORGB listener, orgbd can run an ops HTTP API, record a session audit
// trail in SQLite, publish state to MQTT and write request history to
// InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/orgbd/internal/audit"
	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/events"
	"github.com/nerrad567/orgbd/internal/infrastructure/config"
	"github.com/nerrad567/orgbd/internal/infrastructure/database"
	"github.com/nerrad567/orgbd/internal/infrastructure/influxdb"
	"github.com/nerrad567/orgbd/internal/infrastructure/logging"
	"github.com/nerrad567/orgbd/internal/infrastructure/mqtt"
	"github.com/nerrad567/orgbd/internal/ops"
	"github.com/nerrad567/orgbd/internal/server"
	"github.com/nerrad567/orgbd/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupCheckTimeout bounds the startup health check of backing services.
const startupCheckTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence of optional services
	log := logging.Default()
	log.Info("starting orgbd", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	registry, err := buildRegistry(cfg.Devices)
	if err != nil {
		return fmt.Errorf("building controllers: %w", err)
	}
	log.Info("controllers ready", "count", registry.Len())

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := server.NewMetrics(promReg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	bus := events.NewBus(events.Config{
		QueueSize:   cfg.Events.QueueSize,
		Workers:     cfg.Events.Workers,
		SinkTimeout: cfg.Events.SinkTimeout,
	})
	bus.SetLogger(log.Component("events"))
	// Close is idempotent; the normal path drains the bus before the sinks'
	// backends are closed.
	defer bus.Close()

	checks := make(map[string]ops.HealthChecker)
	var auditRepo audit.Repository

	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("audit database ready", "path", db.Path())

		repo := audit.NewSQLiteRepository(db.DB)
		auditRepo = repo
		bus.Subscribe(audit.NewSink(repo))
		checks["database"] = db
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", mqttClient.Topics().Prefix(),
		)

		stateSink := newMQTTSink(mqttClient, mqttClient.Topics(), registry)
		mqttClient.SetOnConnect(func() {
			if pubErr := stateSink.publishAll(); pubErr != nil {
				log.Warn("republishing device state failed", "error", pubErr)
			}
		})
		if pubErr := stateSink.publishAll(); pubErr != nil {
			log.Warn("publishing initial device state failed", "error", pubErr)
		}
		bus.Subscribe(stateSink)
		checks["mqtt"] = mqttClient
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err, "failures", influxClient.WriteFailures())
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		bus.Subscribe(influxSink{w: influxClient})
		checks["influxdb"] = influxClient
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}

	srv := server.New(serverConfig(cfg.Server), registry,
		server.WithLogger(log.Component("server")),
		server.WithMetrics(metrics),
		server.WithPublisher(bus),
	)

	if cfg.Ops.Enabled {
		opsSrv, opsErr := newOpsServer(cfg, log, registry, srv, auditRepo, promReg, checks)
		if opsErr != nil {
			return opsErr
		}
		bus.Subscribe(opsSrv.Hub())
		if startErr := opsSrv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting ops API: %w", startErr)
		}
		defer func() {
			if closeErr := opsSrv.Close(); closeErr != nil {
				log.Error("error closing ops API", "error", closeErr)
			}
		}()
	}

	log.Info("orgbd started", "addr", serverConfig(cfg.Server).Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		serveErr := srv.ListenAndServe(gctx)
		if errors.Is(serveErr, server.ErrServerClosed) || gctx.Err() != nil {
			return nil
		}
		return serveErr
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	bus.Close()
	bs := bus.Stats()
	log.Info("event bus drained", "published", bs.Published, "delivered", bs.Delivered, "dropped", bs.Dropped)

	st := srv.Stats()
	log.Info("orgbd stopped", "sessions_total", st.SessionsTotal, "frames", st.Frames, "dropped", st.Dropped)
	return nil
}

// serverConfig maps the server section of the config file to listener settings.
func serverConfig(c config.ServerConfig) server.Config {
	return server.Config{
		Host:           c.Host,
		Port:           c.Port,
		MaxConnections: c.MaxConnections,
		MaxPayloadSize: uint32(c.MaxPayloadSize), //nolint:gosec // validated to fit u32
		FrameTimeout:   c.FrameTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}

func newOpsServer(
	cfg *config.Config,
	log *logging.Logger,
	registry *controller.Registry,
	srv *server.Server,
	auditRepo audit.Repository,
	gatherer prometheus.Gatherer,
	checks map[string]ops.HealthChecker,
) (*ops.Server, error) {
	opsSrv, err := ops.New(ops.Deps{
		Config:   cfg.Ops,
		WS:       cfg.WebSocket,
		Logger:   log.Component("ops"),
		Registry: registry,
		Sessions: srv,
		Audit:    auditRepo,
		Gatherer: gatherer,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ops API: %w", err)
	}
	return opsSrv, nil
}

// getConfigPath returns the configuration file path.
// Checks ORGBD_CONFIG environment variable first, then falls back to default.
func getConfigPath() string {
	if path := os.Getenv("ORGBD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every enabled backing service is reachable.
func healthCheck(ctx context.Context, checks map[string]ops.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	var errs []error
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
