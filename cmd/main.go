package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/config"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/events"
	"github.com/ukydev/fleet-ledger/internal/fleet"
	"github.com/ukydev/fleet-ledger/internal/handlers"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/seed"
	"github.com/ukydev/fleet-ledger/internal/worker"
)

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// openStore connects the configured backend. The memory store starts with a
// generated demo fleet so a local run has something to show.
func openStore(ctx context.Context, cfg *config.Config) (db.Store, func() error, error) {
	store, closer, err := db.Open(ctx, db.Options{
		Type:        cfg.DBType,
		MongoURI:    cfg.MongoURI,
		MongoDB:     cfg.MongoDB,
		PostgresURL: cfg.PostgresURL,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBType == "memory" {
		if _, err := seed.Fleet(ctx, store, seed.DefaultOptions(time.Now().UTC())); err != nil {
			closer()
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}
		log.Warn("Using in-memory store with demo data; nothing is persisted")
	}
	return store, closer, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.EventBackend {
	case "mqtt":
		p, err := events.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			return nil, fmt.Errorf("connect to MQTT broker: %w", err)
		}
		log.WithFields(log.Fields{"broker": cfg.MQTTBroker, "topic": cfg.MQTTTopic}).Info("Publishing compliance events over MQTT")
		return p, nil
	case "amqp":
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("connect to AMQP broker: %w", err)
		}
		log.WithField("exchange", cfg.AMQPExchange).Info("Publishing compliance events over AMQP")
		return p, nil
	default:
		return events.Noop{}, nil
	}
}

func newAuthMiddleware(cfg *config.Config) (*middleware.AuthMiddleware, error) {
	if cfg.AuthDisabled {
		log.Warn("Authentication disabled; every request runs as the local admin")
		return middleware.NewAuthMiddleware(nil), nil
	}
	svc, err := auth.NewService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return middleware.NewAuthMiddleware(svc), nil
}

// clock is the process time source; tests pin it.
var clock = time.Now

// ledgerClock reads clock in the reference timezone, so dates taken from it
// (payment dates, rolled expiries, month windows) are ledger days.
func ledgerClock(loc *time.Location) func() time.Time {
	return func() time.Time { return clock().In(loc) }
}

// app is the wired server and its background sweep.
type app struct {
	server  *http.Server
	sweeper *worker.AlertSweeper
	cfg     *config.Config
}

func newApp(cfg *config.Config, store db.Store, publisher events.Publisher) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	authMW, err := newAuthMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	logger := log.NewEntry(log.StandardLogger())
	now := ledgerClock(loc)
	renewer := compliance.NewRenewer(store, publisher, logger).WithClock(now)
	svc := fleet.NewService(store, renewer, loc, logger).WithClock(now)
	h := handlers.NewHandler(svc, logger)

	router := handlers.NewRouter(h, handlers.RouterOptions{
		Auth:              authMW,
		CORSOrigins:       cfg.CORSOrigins,
		RenewalsPerMinute: cfg.RateLimitRenewals,
		Logger:            logger.WithField("component", "access"),
	})

	return &app{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		sweeper: worker.NewAlertSweeper(store, publisher, logger),
		cfg:     cfg,
	}, nil
}

// run serves until ctx is cancelled, then drains in-flight requests.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.sweeper.Run(ctx, a.cfg.AlertInterval)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", a.server.Addr).Info("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	publisher, err := openPublisher(cfg)
	if err != nil {
		log.WithError(err).Error("Event publisher unavailable, continuing without events")
		publisher = events.Noop{}
	}
	defer publisher.Close()

	a, err := newApp(cfg, store, publisher)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}
	if err := a.run(ctx); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
}
