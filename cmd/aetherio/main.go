// cmd/aetherio/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/alerting"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/anomaly"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/api"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/breaker"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/broker"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/config"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/logging"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/metrics"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/simulation"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/storage"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	webDir := flag.String("webdir", "", "Path to the web assets directory (overrides server.web_dir)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *webDir != "" {
		cfg.Server.WebDir = *webDir
	}

	logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("aetherio stopped", "err", err)
		closer.Close()
		os.Exit(1)
	}
	logger.Info("aetherio stopped cleanly")
}

// settingsWatcher mirrors settings saved by other instances.
type settingsWatcher interface {
	Watch(ctx context.Context, apply func(s data.Settings)) error
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, watcher, closeSettings, err := newSettingsStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSettings()

	opts := simulation.Options{
		Logger:                log.With("component", "engine"),
		Store:                 settings,
		TickInterval:          cfg.Simulation.TickInterval,
		InterpolationInterval: cfg.Simulation.InterpolationInterval,
	}
	if cfg.Simulation.Seed != 0 {
		opts.Entropy = simulation.NewEntropy(cfg.Simulation.Seed)
	}
	engine := simulation.New(ctx, opts)

	m := metrics.New()
	store := storage.NewMemoryStore(cfg.Alerting.HistorySize)
	hub := websocket.NewHub(log.With("component", "hub"), m)
	detector := anomaly.NewDetector(cfg.Anomaly.BaselineWatts, engine, log.With("component", "detector"))

	alerter := alerting.NewAlerter(alerting.Options{
		Hub:      hub,
		Store:    store,
		Detector: detector,
		Metrics:  m,
		Logger:   log.With("component", "alerter"),
		Sinks:    newSinks(cfg, log),
		Breaker: breaker.Config{
			MaxFailures:  cfg.Breaker.MaxFailures,
			ResetTimeout: cfg.Breaker.ResetTimeout,
		},
		QueueSize:    cfg.Alerting.QueueSize,
		CostInterval: cfg.Alerting.CostInterval,
		Cost:         engine.Cost,
	})
	unsubscribe := engine.Subscribe(alerter.Enqueue)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	handler := api.NewAPIHandler(gctx, engine, store, hub, m, log.With("component", "api"), cfg.Server.WebDir)
	hub.SetCommandHandler(handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.SetupUIRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return alerter.Run(gctx) })
	g.Go(func() error { return engine.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Watch(gctx, engine.ApplyRemoteSettings) })
	}
	g.Go(func() error {
		log.Info("starting web UI, websocket and API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newSettingsStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (simulation.SettingsStore, settingsWatcher, func(), error) {
	switch cfg.Settings.Backend {
	case "redis":
		rc := cfg.Settings.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		log.Info("settings backend", "backend", "redis", "addr", rc.Addr, "key", rc.Key)
		s := storage.NewRedisSettingsStore(client, rc.Key, rc.Channel, log.With("component", "settings"))
		return s, s, func() { client.Close() }, nil
	default:
		log.Info("settings backend", "backend", "file", "path", cfg.Settings.Path)
		return storage.NewFileSettingsStore(cfg.Settings.Path), nil, func() {}, nil
	}
}

// newSinks connects every enabled broker. A broker that cannot be reached at
// startup is skipped with a warning.
func newSinks(cfg *config.Config, log *slog.Logger) []alerting.Sink {
	var sinks []alerting.Sink

	if cfg.Kafka.Enabled {
		sinks = append(sinks, broker.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Info("kafka sink enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	if cfg.MQTT.Enabled {
		s, err := broker.NewMQTTSink(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, cfg.MQTT.ConnectTimeout)
		if err != nil {
			log.Warn("mqtt sink disabled", "err", err)
		} else {
			sinks = append(sinks, s)
			log.Info("mqtt sink enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
		}
	}

	if cfg.NATS.Enabled {
		s, err := broker.NewNATSSink(broker.NATSConfig{
			URL:            cfg.NATS.URL,
			Name:           cfg.NATS.Name,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		})
		if err != nil {
			log.Warn("nats sink disabled", "err", err)
		} else {
			sinks = append(sinks, s)
			log.Info("nats sink enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		}
	}

	return sinks
}
