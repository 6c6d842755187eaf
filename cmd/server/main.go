package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loganrenz/narduk-grib/internal/adapter/httpapi"
	kafkaadapter "github.com/loganrenz/narduk-grib/internal/adapter/kafka"
	"github.com/loganrenz/narduk-grib/internal/cache"
	"github.com/loganrenz/narduk-grib/internal/config"
	"github.com/loganrenz/narduk-grib/internal/decoder"
	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/fetch"
	"github.com/loganrenz/narduk-grib/internal/gribsvc"
	"github.com/loganrenz/narduk-grib/internal/observability"
	"github.com/loganrenz/narduk-grib/internal/store"
	"github.com/loganrenz/narduk-grib/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	blobs, err := store.NewBlobs(cfg.StoragePath)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	catalog, err := store.OpenCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog init failed", "error", err)
		os.Exit(1)
	}

	dec := cache.NewCachedDecoder(decoder.New(logger, metrics), cfg.DecodeCacheSize, metrics)

	validate := func(rawURL string) error {
		return domain.ValidateDownloadURL(rawURL, cfg.DownloadAllowPrivate)
	}
	downloader := fetch.NewDownloader(validate, cfg.DownloadTimeout, cfg.MaxDownloadBytes, logger)

	// Event publishing is feature-flagged via KAFKA_ENABLED; a nil publisher
	// is a no-op.
	var events *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		events = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger, metrics)
		logger.Info("kafka events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka events disabled")
	}

	svc := gribsvc.New(blobs, catalog, dec, downloader, events, logger, metrics)

	if n, err := catalog.Count(context.Background()); err == nil {
		metrics.StoredFiles.Set(float64(n))
	}

	srv := httpapi.NewServer(cfg, svc, web.Static(), logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := events.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
	if err := catalog.Close(); err != nil {
		logger.Error("catalog close error", "error", err)
	}

	logger.Info("shutdown complete")
}
