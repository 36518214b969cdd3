package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cloudgallery/internal/bootstrap"
	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/internal/pipeline"
	"github.com/angelmondragon/cloudgallery/internal/pipeline/consumer"
	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/db"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/angelmondragon/cloudgallery/pkg/metrics"
	"github.com/angelmondragon/cloudgallery/pkg/migrate"
	"github.com/angelmondragon/cloudgallery/pkg/pubsub"
	"github.com/angelmondragon/cloudgallery/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	blobs, err := bootstrap.NewBlobs(ctx, cfg, logg)
	requireResource(ctx, logg, "blob store", err)

	detector, err := bootstrap.NewLabelDetector(ctx, cfg, logg)
	requireResource(ctx, logg, "label detector", err)

	attempts, err := pipeline.NewRedisAttemptTracker(redisClient, cfg.Pipeline.AttemptWindow)
	requireResource(ctx, logg, "delivery tracker", err)

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	dispatcher, err := bootstrap.NewDispatcher(bootstrap.PipelineParams{
		Config:   cfg,
		Logger:   logg,
		Repo:     images.NewRepository(dbClient.DB()),
		Blobs:    blobs,
		Labels:   detector,
		Attempts: attempts,
		Metrics:  pipelineMetrics,
	})
	requireResource(ctx, logg, "dispatcher", err)

	imageConsumer, err := consumer.NewConsumer(dispatcher, pubsubClient.ImageSubscription(), logg)
	requireResource(ctx, logg, "image consumer", err)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		PubSub:        pubsubClient,
		Blobs:         blobs,
		ImageConsumer: imageConsumer,
		MetricsServer: &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	})
	requireResource(ctx, logg, "worker service", err)

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.ImageSubscription,
		"concurrency":  cfg.Pipeline.Concurrency,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
