// Package main wires together the edge-intake service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cantikdist/edge-intake/internal/admission"
	"github.com/cantikdist/edge-intake/internal/api"
	"github.com/cantikdist/edge-intake/internal/clock/system"
	"github.com/cantikdist/edge-intake/internal/config"
	"github.com/cantikdist/edge-intake/internal/edge"
	"github.com/cantikdist/edge-intake/internal/id/uuid"
	"github.com/cantikdist/edge-intake/internal/intake"
	"github.com/cantikdist/edge-intake/internal/logging"
	"github.com/cantikdist/edge-intake/internal/notifier"
	"github.com/cantikdist/edge-intake/internal/pipeline"
	"github.com/cantikdist/edge-intake/internal/relay"
	"github.com/cantikdist/edge-intake/internal/store/noop"
	"github.com/cantikdist/edge-intake/internal/store/postgres"
)

// leadStore is what the wiring needs from any store provider.
type leadStore interface {
	pipeline.Store
	api.LeadReader
	Close()
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	notify, closeNotifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}
	defer closeNotifier()

	clock := system.New()
	idGen := uuid.New()

	controller := admission.NewMemory(admission.Config{
		Window: cfg.Admission.Window(),
		Limit:  cfg.Admission.Limit,
	}, clock)
	go controller.Run(ctx)

	validator := intake.NewValidator(cfg.Locale.PhonePrefix)
	pipe := pipeline.New(
		controller,
		validator,
		store,
		notify,
		idGen,
		clock,
		pipeline.Config{
			StoreTimeout:  cfg.Store.WriteTimeout(),
			NotifyTimeout: cfg.Notifier.Timeout(),
		},
		cfg.Admission.Window(),
		logger,
	)
	go pipe.Replays().Run(ctx)

	forwarder := relay.New(relay.Config{
		CollectorURL: cfg.Telemetry.CollectorURL,
		Timeout:      cfg.Telemetry.Timeout(),
		MaxEventsRPS: cfg.Telemetry.MaxEventsRPS,
		Burst:        cfg.Telemetry.Burst,
	}, logger)

	edgeRouter := edge.New(edge.Config{
		Supported:    cfg.Locale.Supported,
		Default:      cfg.Locale.Default,
		CookieName:   cfg.Locale.CookieName,
		CookieMaxAge: cfg.Locale.CookieMaxAge,
	})

	server := api.NewServer(pipe, store, forwarder, edgeRouter, idGen, cfg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("edge-intake listening", zap.Int("port", cfg.Server.Port))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("edge-intake stopped")
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (leadStore, error) {
	switch cfg.Store.Provider {
	case "postgres":
		logger.Info("connecting lead store", zap.String("table", cfg.Store.Table))
		return postgres.New(ctx, postgres.Config{
			DSN:             cfg.Store.DSN,
			Table:           cfg.Store.Table,
			MaxConns:        cfg.Store.MaxConns,
			MinConns:        cfg.Store.MinConns,
			MaxConnLifetime: cfg.Store.ConnLifetime(),
		})
	case "noop":
		logger.Warn("using no-op lead store; leads will be discarded")
		return noop.New(), nil
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.Notifier, func(), error) {
	switch cfg.Notifier.Provider {
	case "webhook":
		logger.Info("using webhook notifier")
		return notifier.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.WebhookToken, cfg.Notifier.Timeout()), func() {}, nil
	case "pubsub":
		logger.Info("using pubsub notifier", zap.String("topic", cfg.Notifier.PubSubTopic))
		ps, err := notifier.NewPubSub(ctx, cfg.Notifier.PubSubProject, cfg.Notifier.PubSubTopic)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() { _ = ps.Close() }, nil
	case "noop":
		logger.Warn("using no-op notifier; fallback deliveries will be discarded")
		return notifier.NewNoop(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier provider: %s", cfg.Notifier.Provider)
	}
}
