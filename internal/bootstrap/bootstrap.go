// Package bootstrap assembles the blob, label and pipeline components shared
// by the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/internal/pipeline"
	"github.com/angelmondragon/cloudgallery/internal/thumbnail"
	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/labels/rekognition"
	"github.com/angelmondragon/cloudgallery/pkg/labels/vision"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/angelmondragon/cloudgallery/pkg/metrics"
	"github.com/angelmondragon/cloudgallery/pkg/storage/gcs"
	"github.com/angelmondragon/cloudgallery/pkg/storage/s3"
)

// Blobs is the union of what the api and the worker need from the bucket.
type Blobs interface {
	images.UploadSigner
	pipeline.BlobStore
	Ping(ctx context.Context) error
}

// NewBlobs selects the configured blob backend.
func NewBlobs(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Blobs, error) {
	switch cfg.Blob.Backend {
	case config.BlobBackendGCS:
		client, err := gcs.NewClient(ctx, cfg.Blob, cfg.GCP, logg)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return client, nil
	case config.BlobBackendS3:
		client, err := s3.NewClient(ctx, cfg.S3, cfg.Blob, logg)
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Blob.Backend)
	}
}

// NewLabelDetector selects the configured label-detection backend.
func NewLabelDetector(ctx context.Context, cfg *config.Config, logg *logger.Logger) (pipeline.LabelDetector, error) {
	switch cfg.Labels.Backend {
	case config.LabelsBackendVision:
		client, err := vision.NewClient(ctx, cfg.Labels, cfg.GCP, logg)
		if err != nil {
			return nil, fmt.Errorf("vision client: %w", err)
		}
		return client, nil
	case config.LabelsBackendRekognition:
		client, err := rekognition.NewClient(ctx, cfg.Labels, cfg.S3, logg)
		if err != nil {
			return nil, fmt.Errorf("rekognition client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported labels backend %q", cfg.Labels.Backend)
	}
}

// PipelineParams carries the already built dependencies of the dispatcher.
// Attempts may be nil, in which case deliveries are not counted; the api
// falls back to an in-process tracker when Redis is absent.
type PipelineParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Repo     *images.Repository
	Blobs    pipeline.BlobStore
	Labels   pipeline.LabelDetector
	Attempts pipeline.AttemptTracker
	Metrics  *metrics.PipelineMetrics
}

// NewDispatcher wires a transform worker behind a dispatcher.
func NewDispatcher(params PipelineParams) (*pipeline.Dispatcher, error) {
	cfg := params.Config
	keys := images.NewKeyScheme(cfg.Blob.DerivativePrefix)
	worker, err := pipeline.NewWorker(pipeline.WorkerParams{
		Repo:   params.Repo,
		Blobs:  params.Blobs,
		Labels: params.Labels,
		Keys:   keys,
		Thumbnail: thumbnail.Options{
			MaxDimension: cfg.Thumbnail.MaxDimension,
			Quality:      cfg.Thumbnail.Quality,
			LabelQuality: cfg.Thumbnail.LabelQuality,
		},
		MaxLabels:    cfg.Labels.MaxLabels,
		CallTimeout:  cfg.Pipeline.CallTimeout,
		FetchRetries: cfg.Pipeline.FetchRetries,
		LabelRetries: cfg.Pipeline.LabelRetries,
		RetryBase:    cfg.Pipeline.RetryBaseDelay,
		Metrics:      params.Metrics,
		Logger:       params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("transform worker: %w", err)
	}
	return pipeline.NewDispatcher(pipeline.DispatcherParams{
		Worker:        worker,
		Keys:          keys,
		Attempts:      params.Attempts,
		MaxDeliveries: cfg.Pipeline.MaxDeliveries,
		Concurrency:   cfg.Pipeline.Concurrency,
		Metrics:       params.Metrics,
		Logger:        params.Logger,
	})
}
