package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cloudgallery/api"
	"github.com/angelmondragon/cloudgallery/api/controllers"
	"github.com/angelmondragon/cloudgallery/api/routes"
	"github.com/angelmondragon/cloudgallery/internal/bootstrap"
	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/internal/pipeline"
	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/db"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/angelmondragon/cloudgallery/pkg/metrics"
	"github.com/angelmondragon/cloudgallery/pkg/migrate"
	"github.com/angelmondragon/cloudgallery/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	blobs, err := bootstrap.NewBlobs(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap blob store", err)
		os.Exit(1)
	}

	readiness := map[string]controllers.Pinger{
		"database":       dbClient,
		cfg.Blob.Backend: blobs,
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		readiness["redis"] = redisClient
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	repo := images.NewRepository(dbClient.DB())

	imageService, err := images.NewService(images.ServiceParams{
		Repo:            repo,
		Signer:          blobs,
		Keys:            images.NewKeyScheme(cfg.Blob.DerivativePrefix),
		UploadTTL:       cfg.Blob.UploadURLTTL,
		BindContentType: cfg.FeatureFlags.BindContentType,
		Metrics:         pipelineMetrics,
		Logger:          logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create image service", err)
		os.Exit(1)
	}

	var dispatcher controllers.Dispatcher
	if cfg.FeatureFlags.EnableEventWebhook {
		dispatcher, err = webhookDispatcher(ctx, cfg, logg, repo, blobs, redisClient, pipelineMetrics)
		if err != nil {
			logg.Error(ctx, "failed to create event dispatcher", err)
			os.Exit(1)
		}
	}

	addr := api.Addr(cfg)
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"webhook":  cfg.FeatureFlags.EnableEventWebhook,
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(cfg, logg, imageService, dispatcher, readiness, promhttp.Handler())
	if err := api.Serve(ctx, api.NewServer(addr, handler), logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func webhookDispatcher(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	repo *images.Repository,
	blobs bootstrap.Blobs,
	redisClient *redis.Client,
	pipelineMetrics *metrics.PipelineMetrics,
) (controllers.Dispatcher, error) {
	detector, err := bootstrap.NewLabelDetector(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	params := bootstrap.PipelineParams{
		Config:  cfg,
		Logger:  logg,
		Repo:    repo,
		Blobs:   blobs,
		Labels:  detector,
		Metrics: pipelineMetrics,
	}
	if redisClient != nil {
		attempts, err := pipeline.NewRedisAttemptTracker(redisClient, cfg.Pipeline.AttemptWindow)
		if err != nil {
			return nil, err
		}
		params.Attempts = attempts
	} else {
		logg.Warn(ctx, "redis not configured; webhook deliveries are counted in process memory")
		params.Attempts = pipeline.NewMemoryAttemptTracker(cfg.Pipeline.AttemptWindow)
	}
	return bootstrap.NewDispatcher(params)
}
