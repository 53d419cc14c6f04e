package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotwatch/internal/api"
	"slotwatch/internal/authwatch"
	"slotwatch/internal/badge"
	"slotwatch/internal/config"
	"slotwatch/internal/domain"
	"slotwatch/internal/events"
	"slotwatch/internal/logging"
	"slotwatch/internal/metrics"
	"slotwatch/internal/models"
	"slotwatch/internal/notify"
	"slotwatch/internal/portal"
	"slotwatch/internal/queue"
	"slotwatch/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(baseLogger, "agent-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(cfg, baseLogger)
	if err != nil {
		return err
	}
	defer st.Close()

	portalClient := portal.NewClient(cfg.Portal, logging.Component(baseLogger, "portal"))

	var indicator domain.Indicator
	if cfg.Badge.StatusFile != "" {
		indicator = badge.NewFileIndicator(cfg.Badge.StatusFile)
	} else {
		indicator = badge.NewLogIndicator(logging.Component(baseLogger, "badge"))
	}
	aggregator := badge.NewAggregator(indicator, logging.Component(baseLogger, "badge"))

	dispatcher, err := buildDispatcher(cfg, st, baseLogger)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus()
	manager := queue.NewManager(
		st,
		portalClient,
		portalClient,
		aggregator,
		dispatcher,
		eventBus,
		cfg.Store.QueueKey,
		logging.Component(baseLogger, "queue"),
	)

	watcher := authwatch.NewHandler(st, manager, logging.Component(baseLogger, "authwatch"))
	watcher.Start()

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring, logger)
	}

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, cfg.Exports, manager, logging.Component(baseLogger, "api"))
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("admin API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Queue.AutoStart {
		opts := models.ProcessingOptions{
			IntervalMin:  time.Duration(cfg.Queue.IntervalMinMS) * time.Millisecond,
			IntervalMax:  time.Duration(cfg.Queue.IntervalMaxMS) * time.Millisecond,
			BatchSize:    cfg.Queue.BatchSize,
			RetryEnabled: !cfg.Queue.RetryDisabled,
		}
		if err := manager.StartProcessing(opts); err != nil {
			return err
		}
	}

	logger.Info().
		Str("store", cfg.Store.Backend).
		Bool("auto_start", cfg.Queue.AutoStart).
		Msg("agent started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	manager.StopProcessing()
	return nil
}

// buildStore selects the configured backend. With failover enabled the
// primary is wrapped over an in-memory fallback so the queue survives a
// backend outage within the process lifetime.
func buildStore(cfg *config.Config, baseLogger *zerolog.Logger) (domain.Store, error) {
	var primary domain.Store
	switch cfg.Store.Backend {
	case "redis":
		client := store.NewRedisClient(cfg.Store.Redis)
		primary = store.NewRedisStore(client)
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.SQLite)
		if err != nil {
			return nil, err
		}
		primary = s
	case "memory":
		primary = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.Failover && cfg.Store.Backend != "memory" {
		logger := logging.Component(baseLogger, "store")
		return store.NewFailoverStore(primary, store.NewMemoryStore(), &logger), nil
	}
	return primary, nil
}

func buildDispatcher(cfg *config.Config, st domain.Store, baseLogger *zerolog.Logger) (*notify.Dispatcher, error) {
	var sinks []domain.Notifier

	if cfg.Notifications.Desktop.Enabled {
		sinks = append(sinks, notify.NewDesktopNotifier(cfg.Notifications.Desktop))
	}
	if cfg.Notifications.Email.Enabled {
		sinks = append(sinks, notify.NewEmailNotifier(cfg.Notifications.Email))
	}
	if cfg.Notifications.Telegram.Enabled {
		tn, err := notify.NewTelegramNotifier(cfg.Notifications.Telegram)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tn)
	}

	return notify.NewDispatcher(st, logging.Component(baseLogger, "notify"), sinks...), nil
}

func serveMetrics(cfg config.MonitoringConfig, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.PrometheusPort)
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
