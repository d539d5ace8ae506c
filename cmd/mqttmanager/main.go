// MQTT connection manager.
//
// This is the entry point for the device-side MQTT manager. It keeps the
// device connected to the broker configured at provisioning time, persists
// that profile, and serves the provisioning console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-mqttmgr/migrations"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/console"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/kvstore"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/manager"
	"github.com/nerrad567/gray-logic-mqttmgr/internal/netif"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds how long the manager may take to stop.
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
	issueToken  string
}

func parseFlags(args []string) (options, error) {
	opts := options{configPath: defaultConfigPath}
	if path := os.Getenv("MQTTMGR_CONFIG"); path != "" {
		opts.configPath = path
	}

	flags := pflag.NewFlagSet("mqttmanager", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", opts.configPath, "path to the YAML configuration file")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flags.StringVar(&opts.issueToken, "issue-token", "", "print a console bearer token for this subject and exit")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "mqttmanager %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()

	cfg, err := loadConfig(opts.configPath, log)
	if err != nil {
		return err
	}

	if opts.issueToken != "" {
		token, tokenErr := console.IssueToken(cfg.Security.JWT.Secret, opts.issueToken, console.DefaultTokenTTL)
		if tokenErr != nil {
			return fmt.Errorf("issuing token: %w", tokenErr)
		}
		fmt.Fprintln(stdout, token)
		return nil
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting MQTT manager",
		"version", version,
		"commit", commit,
		"build_date", date,
		"device_id", cfg.Device.ID,
	)

	store, storeCheck, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	checks := map[string]console.HealthCheck{"storage": storeCheck}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := console.NewHub(log.Component("console"))
	observers := snapshotFanout{hub}

	var recorder manager.TransitionRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		checks["influxdb"] = influxClient.HealthCheck

		t := &telemetry{client: influxClient, deviceID: cfg.Device.ID, logger: log}
		recorder = t
		observers = append(observers, t)
	} else {
		log.Info("InfluxDB disabled")
	}

	accessPoint := netif.NewAccessPoint(netif.DefaultShutdownGrace)
	accessPoint.SetLogger(log.Component("accesspoint"))
	defer accessPoint.Close()

	var watcher manager.NetworkWatcher
	if cfg.Network.Enabled {
		w := netif.NewWatcher(netif.Config{
			Interface:    cfg.Network.Interface,
			PollInterval: cfg.Network.PollInterval,
		})
		w.SetLogger(log.Component("netif"))
		watcher = w
	} else {
		log.Info("network watcher disabled")
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "mqttmgr-" + uuid.NewString()[:8]
	}

	mgr, err := manager.New(manager.Options{
		Store:              store,
		Lock:               kvstore.NewLock(cfg.Storage.LockTimeout),
		Namespace:          cfg.Storage.Namespace,
		ClientID:           clientID,
		KeepAlive:          cfg.MQTT.KeepAlive,
		ConnectTimeout:     cfg.MQTT.ConnectTimeout,
		InsecureSkipVerify: cfg.MQTT.InsecureSkipVerify,
		AccessPoint:        accessPoint,
		Network:            watcher,
		Observer:           observers,
		Recorder:           recorder,
		Metrics:            manager.NewMetrics(registry),
		Logger:             log.Component("manager"),
		QueueSize:          cfg.MQTT.QueueSize,
		RetryInterval:      cfg.MQTT.RetryInterval,
	})
	if err != nil {
		return fmt.Errorf("creating manager: %w", err)
	}
	mgr.SetCallback(manager.KindBrokerEvent, manager.HandlerFunc(func(msg manager.Message) {
		if ev, ok := msg.Payload.(mqtt.Event); ok && ev.Kind == mqtt.EventData {
			log.Debug("MQTT data", "topic", ev.Topic, "bytes", len(ev.Payload))
		}
	}))

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping manager")
		if closeErr := mgr.Close(stopCtx); closeErr != nil {
			log.Error("error stopping manager", "error", closeErr)
		}
	}()
	log.Info("manager started", "client_id", clientID, "profile", mgr.Profile())

	if cfg.Console.Enabled {
		srv, srvErr := console.New(console.Deps{
			Config:       cfg.Console,
			Security:     cfg.Security,
			Logger:       log.Component("console"),
			Manager:      mgr,
			Hub:          hub,
			Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			HealthChecks: checks,
			Version:      version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating console: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting console: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing console", "error", closeErr)
			}
		}()
	}

	log.Info("MQTT manager running")
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// loadConfig reads path, falling back to defaults when the file does not
// exist.
func loadConfig(path string, log *logging.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("configuration file not found, using defaults", "path", path)
		return config.LoadDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// openStore opens the configured persistence backend along with a health
// check for it. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (kvstore.Store, console.HealthCheck, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendRedis:
		store, err := kvstore.NewRedisStore(ctx, kvstore.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening redis store: %w", err)
		}
		log.Info("redis store connected", "addr", cfg.Storage.Redis.Addr)
		return store, store.HealthCheck, func() {
			if err := store.Close(); err != nil {
				log.Error("error closing redis store", "error", err)
			}
		}, nil

	default:
		db, err := database.Open(ctx, cfg.Storage.SQLite)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		store := kvstore.NewSQLiteStore(db)
		return store, db.HealthCheck, func() {
			//nolint:errcheck // SQLiteStore.Close only discards staged values
			store.Close()
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}, nil
	}
}
