// vmgrid - hypervisor state mirror
//
// vmgrid connects to the admin daemon's unix socket, mirrors the
// lifecycle state of domains, exported devices, and labels, and exposes
// the mirror through MQTT signals, a read-only HTTP/WebSocket API, and
// a SQLite history journal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/vmgrid/vmgrid-core/migrations"

	"github.com/vmgrid/vmgrid-core/internal/admin"
	"github.com/vmgrid/vmgrid-core/internal/api"
	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/history"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/config"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/database"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/influxdb"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/logging"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/mqtt"
	"github.com/vmgrid/vmgrid-core/internal/mirror"
	"github.com/vmgrid/vmgrid-core/internal/router"
	vmsignal "github.com/vmgrid/vmgrid-core/internal/signal"
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
	log.Info("starting vmgrid",
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

	// Open history database (optional)
	var db *database.DB
	var journal *history.Journal
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
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

		journal = history.NewJournal(db, log)
		journal.Start(ctx)
		log.Info("history journal started")

		if cfg.Database.RetentionDays > 0 {
			go pruneLoop(ctx, journal, cfg.Database.RetentionDays, log)
		}
	} else {
		log.Info("history journal disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var mqttSink *vmsignal.MQTTSink
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttSink = vmsignal.NewMQTTSink(mqttClient, log)
		mqttSink.Start(ctx)
	} else {
		log.Info("MQTT disabled")
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

	// Assemble the mirror: notifier, registry, reconciler
	notifier := mirror.NewChangeNotifier()
	notifier.SetLogger(log)
	if mqttSink != nil {
		notifier.AddSink(mqttSink)
	}
	if journal != nil {
		notifier.AddSink(journal)
	}
	if influxClient != nil {
		notifier.AddSink(&lifecycleRecorder{influx: influxClient})
	}

	registry := mirror.NewRegistry(notifier)
	registry.SetLogger(log)
	reconciler := mirror.NewReconciler(registry)
	reconciler.SetLogger(log)

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		View:     mirror.NewView(registry),
		Journal:  journal,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	notifier.AddSink(vmsignal.NewBroadcastSink(apiServer.Hub()))

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Connect to the admin daemon
	adminClient, err := admin.Dial(cfg.Admin.SocketPath)
	if err != nil {
		return fmt.Errorf("connecting to admin daemon: %w", err)
	}
	defer func() {
		log.Info("closing admin connection")
		if closeErr := adminClient.Close(); closeErr != nil {
			log.Error("error closing admin connection", "error", closeErr)
		}
	}()
	log.Info("admin daemon connected", "socket", cfg.Admin.SocketPath)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Build the event router and perform the initial synchronization
	opts := []router.Option{
		router.WithLogger(log),
		router.WithWorkers(cfg.Router.Workers),
	}
	if influxClient != nil {
		opts = append(opts, router.WithStatsRecorder(influxClient))
	}
	rt := router.New(adminClient, registry, reconciler, opts...)

	if err := rt.Bootstrap(ctx); err != nil {
		return fmt.Errorf("initial synchronization: %w", err)
	}
	log.Info("initialisation complete, routing events")

	// Run blocks until the context is cancelled (clean shutdown) or the
	// event stream is lost (fatal: the mirror would silently go stale).
	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("event routing: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Admin connection
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database (if enabled)

	log.Info("vmgrid stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VMGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VMGRID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional components may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// pruneInterval is how often expired history journal entries are removed.
const pruneInterval = 12 * time.Hour

// pruneLoop periodically removes history journal entries older than the
// configured retention window. Runs until the context is cancelled.
func pruneLoop(ctx context.Context, journal *history.Journal, retentionDays int, log *logging.Logger) {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := journal.Prune(ctx, retention)
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("history pruned", "removed", removed, "retention_days", retentionDays)
			}
		}
	}
}

// lifecycleRecorder adapts the InfluxDB client to the notifier's sink
// interface, recording domain lifecycle transitions as time-series
// points. All other notifications are ignored.
type lifecycleRecorder struct {
	influx *influxdb.Client
}

func (r *lifecycleRecorder) PropertiesChanged(entity.Identity, entity.Snapshot, []string) {}
func (r *lifecycleRecorder) Added(entity.Identity)                                        {}
func (r *lifecycleRecorder) Removed(entity.Identity)                                      {}
func (r *lifecycleRecorder) Attached(entity.Identity, entity.Identity)                    {}
func (r *lifecycleRecorder) Detached(entity.Identity, entity.Identity)                    {}

func (r *lifecycleRecorder) DomainState(id entity.Identity, state entity.State) {
	r.influx.RecordLifecycle(string(id), string(state))
}
