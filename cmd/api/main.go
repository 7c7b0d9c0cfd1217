package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/api"
	"github.com/punchamoorthee/cardledger/internal/config"
	"github.com/punchamoorthee/cardledger/internal/events"
	"github.com/punchamoorthee/cardledger/internal/ratelimit"
	"github.com/punchamoorthee/cardledger/internal/service"
	"github.com/punchamoorthee/cardledger/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	// Storage
	var accountStore store.Store
	if cfg.DBSource == "" {
		logger.Warn("DB_SOURCE not set, using in-memory store")
		accountStore = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DBSource, cfg.LockTimeout)
		if err != nil {
			logger.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx, logger); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
		accountStore = pg
	}

	// Event sinks
	sinks := []events.Sink{events.NewLogSink(logger)}
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			logger.WithError(err).Warn("AMQP unavailable, events will only be logged")
		} else {
			defer amqpSink.Close()
			sinks = append(sinks, amqpSink)
		}
	}
	if cfg.SMTPHost != "" && cfg.OpsEmail != "" {
		sinks = append(sinks, events.NewMailSink(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.OpsEmail))
	}
	dispatcher := events.NewDispatcher(logger, cfg.EventBufferSize, cfg.EventWorkers, sinks...)
	defer dispatcher.Close()

	// Initialize Layers
	locker := service.NewLocker(cfg.LockTimeout)
	transfers := service.Instrument(service.NewTransferService(accountStore, locker, dispatcher), logger)
	accounts := service.NewAccountService(accountStore, locker, dispatcher, logger)

	rateStore, err := ratelimit.NewLRUStore(cfg.RateLimitCacheSize)
	if err != nil {
		logger.Fatal(err)
	}
	limiter := ratelimit.New(rateStore, cfg.RateLimits, logger)

	handler := api.NewHandler(transfers, accounts, service.NewReportService(accountStore), logger)
	router := api.NewRouter(handler, limiter, []byte(cfg.JWTSecret), logger)

	// Scheduled expiry sweep
	c := cron.New()
	_, err = c.AddFunc(cfg.ExpirySweepCron, func() {
		if _, err := accounts.ExpireDue(context.Background()); err != nil {
			logger.WithError(err).Error("expiry sweep finished with errors")
		}
	})
	if err != nil {
		logger.Fatalf("Invalid EXPIRY_SWEEP_CRON: %v", err)
	}
	c.Start()
	defer c.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("env", cfg.Env).Infof("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
