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

	"github.com/imalyk/deepscan/internal/api"
	"github.com/imalyk/deepscan/internal/config"
	"github.com/imalyk/deepscan/internal/feature"
	"github.com/imalyk/deepscan/internal/log"
	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/queue"
	"github.com/imalyk/deepscan/internal/service"
	"github.com/imalyk/deepscan/internal/source"
	"github.com/imalyk/deepscan/internal/storage"
	"github.com/imalyk/deepscan/internal/store"
)

func main() {
	cfg := config.Load()
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "deepscan-api"})
	logger := log.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The backbone is loaded once and shared read-only across requests.
	backbone, err := feature.SharedBackbone(cfg.BackboneWeights)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load backbone weights")
	}
	encoder := feature.NewEncoder(backbone, cfg.EncodeConcurrency)
	sampler := media.NewSampler(cfg.FFMPEGPath, cfg.FFProbePath, backbone.InputSize, log.WithComponent("sampler"))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis ping failed")
	}
	q := queue.New(rdb, cfg.QueueKey, cfg.JobTTL)

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
		logger.Fatal().Err(err).Msg("object storage connection failed")
	}

	records, err := store.NewPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer records.Close()

	hosted := source.NewHostedDownloader(cfg.YTDLPPath, cfg.TempDir, log.WithComponent("ytdlp"))
	resolver := source.New(hosted, cfg.MaxDownloadBytes, cfg.MinHostedBytes, log.WithComponent("resolver"))

	pipeline := service.NewPipeline(sampler, encoder, q, blobs, cfg.MaxFrames, cfg.ModelID, log.WithComponent("pipeline"))
	analyzer := service.NewAnalyzer(resolver, blobs, records, pipeline, cfg.TempDir, log.WithComponent("analyzer"))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(analyzer, records, log.WithComponent("api")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Str("model", cfg.ModelID).Msg("starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}
