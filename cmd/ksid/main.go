// ksid - event routing and observation daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/durapensa/ksi-go/pkg/ksi/checkpoint"
	"github.com/durapensa/ksi-go/pkg/ksi/config"
	"github.com/durapensa/ksi-go/pkg/ksi/daemon"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
	"github.com/durapensa/ksi-go/pkg/ksi/eventlog"
	"github.com/durapensa/ksi-go/pkg/ksi/observability"
	"github.com/durapensa/ksi-go/pkg/ksi/observe"
	"github.com/durapensa/ksi-go/pkg/ksi/routing"
	"github.com/durapensa/ksi-go/pkg/ksi/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML or JSON config file")
		listen     = flag.String("listen", "", "listen address, overrides the config file")
		restore    = flag.String("restore", "", "checkpoint id to restore before serving")
	)
	flag.Parse()

	if err := run(*configPath, *listen, *restore); err != nil {
		slog.Error("ksid failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, listenOverride, restoreID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.String("log_level", "info"))
	slog.SetDefault(logger)

	addr := cfg.String("listen", "tcp://127.0.0.1:7411")
	if listenOverride != "" {
		addr = listenOverride
	}

	logStore, cpStore, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer logStore.Close()
	defer cpStore.Close()

	var rules []routing.Rule
	if path := cfg.String("rules_file", ""); path != "" {
		rules, err = routing.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		logger.Info("rules loaded", slog.String("path", path), slog.Int("count", len(rules)))
	}

	// The server is the engine's delivery path, but it needs the
	// engine to handle requests. Bind through a closure so both can
	// be constructed.
	var srv *server.Server
	engine, err := daemon.New(daemon.Config{
		Rules:       rules,
		Log:         logStore,
		Checkpoints: cpStore,
		Deliverer: observe.DelivererFunc(func(ctx context.Context, observerID string, evt event.Event) error {
			return srv.Deliver(ctx, observerID, evt)
		}),
		FailClosed:       cfg.Bool("fail_closed", false),
		MaxHops:          cfg.Int("max_hops", 0),
		QueueSize:        cfg.Int("queue_size", 0),
		DeliveryTimeout:  cfg.Duration("delivery_timeout", 0),
		DeliveryRetries:  cfg.Int("delivery_retries", 0),
		BreakerThreshold: cfg.Int("breaker_threshold", 0),
		BreakerCooldown:  cfg.Duration("breaker_cooldown", 0),
		Logger:           logger,
		Metrics:          observability.NewMetricsRecorder(),
		Spans:            observability.NewSpanManager(),
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Close()

	srv = server.New(engine, logger)

	if restoreID != "" {
		if err := engine.RestoreCheckpoint(context.Background(), restoreID); err != nil {
			return fmt.Errorf("restore checkpoint: %w", err)
		}
		logger.Info("checkpoint restored", slog.String("checkpoint_id", restoreID))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", slog.String("signal", sig.String()))
		srv.Close()
	}()

	logger.Info("starting ksid", slog.String("listen", addr))
	return srv.Listen(addr)
}

// openStores picks persistent or in-memory backends. A data_dir means
// SQLite files inside it; without one everything is ephemeral.
func openStores(cfg config.Config) (eventlog.Store, checkpoint.Store, error) {
	maxRows := cfg.Int("eventlog_max", 100000)

	dataDir := cfg.String("data_dir", "")
	if dataDir == "" {
		return eventlog.NewMemoryStore(maxRows), checkpoint.NewMemoryStore(), nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	logStore, err := eventlog.NewSQLiteStore(filepath.Join(dataDir, "events.db"), maxRows)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}
	cpStore, err := checkpoint.NewSQLiteStore(filepath.Join(dataDir, "checkpoints.db"))
	if err != nil {
		logStore.Close()
		return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return logStore, cpStore, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}
