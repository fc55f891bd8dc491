package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imalyk/deepscan/internal/classify"
	"github.com/imalyk/deepscan/internal/config"
	"github.com/imalyk/deepscan/internal/log"
	"github.com/imalyk/deepscan/internal/metrics"
	"github.com/imalyk/deepscan/internal/queue"
	"github.com/imalyk/deepscan/internal/storage"
	"github.com/imalyk/deepscan/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "deepscan-worker"})
	logger := log.WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := classify.SharedModel(cfg.ClassifierWeights)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load classifier weights")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping failed")
	}
	q := queue.New(rdb, cfg.QueueKey, cfg.JobTTL)

	// Without object storage the worker still classifies, it just skips the
	// visual artifacts.
	var artifacts *worker.ArtifactRenderer
	blobs, err := storage.New(ctx, storage.Options{
		Endpoint:       cfg.MinioEndpoint,
		AccessKey:      cfg.MinioAccessKey,
		SecretKey:      cfg.MinioSecretKey,
		UseSSL:         cfg.MinioUseSSL,
		Region:         cfg.MinioRegion,
		VideoBucket:    cfg.VideoBucket,
		ArtifactBucket: cfg.ArtifactBucket,
	}, log.WithComponent("storage"))
	if err != nil {
		logger.Warn().Err(err).Msg("object storage unavailable, artifact rendering disabled")
	} else {
		artifacts = worker.NewArtifactRenderer(model, blobs, 5, log.WithComponent("artifacts"))
	}

	// The worker owns the verdict and failure counters, so it needs its own
	// scrape endpoint.
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped with error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("queue", cfg.QueueKey).Str("model", cfg.ModelID).Str("metrics_addr", cfg.MetricsAddr).Msg("worker started, waiting for jobs")

	w := worker.New(q, model, cfg.ModelID, artifacts, cfg.PollTimeout, logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker stopped")
}
