package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/seismic-locator/internal/adapter/api"
	httpadapter "github.com/couchcryptid/seismic-locator/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/seismic-locator/internal/adapter/kafka"
	"github.com/couchcryptid/seismic-locator/internal/adapter/store"
	"github.com/couchcryptid/seismic-locator/internal/config"
	"github.com/couchcryptid/seismic-locator/internal/observability"
	"github.com/couchcryptid/seismic-locator/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	// Origin notifications are feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var opts []pipeline.Option
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		opts = append(opts, pipeline.WithNotifier(publisher))
		logger.Info("origin notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaOriginTopic)
	} else {
		logger.Info("origin notifications disabled")
	}

	p := pipeline.New(backend, pipeline.SettingsFromConfig(cfg), logger, metrics, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, api.NewHandler(backend, p.Stations(), logger), logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("locator error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("locator did not stop before shutdown timeout")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := backend.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
