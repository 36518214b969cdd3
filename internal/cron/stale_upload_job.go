package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultStaleUploadAge = 24 * time.Hour
	staleUploadBatchSize  = 200
)

type StaleUploadJobParams struct {
	Logger    *logger.Logger
	Repo      staleUploadRepo
	MaxAge    time.Duration
	BatchSize int
}

type staleUploadRepo interface {
	ListUploadingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Image, error)
	MarkFailed(ctx context.Context, imageID string, reason enums.FailureReason) (bool, error)
}

// NewStaleUploadJob fails records whose upload never produced a notification.
func NewStaleUploadJob(params StaleUploadJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("image repository required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultStaleUploadAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = staleUploadBatchSize
	}
	return &staleUploadJob{
		logg:      params.Logger,
		repo:      params.Repo,
		maxAge:    maxAge,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type staleUploadJob struct {
	logg      *logger.Logger
	repo      staleUploadRepo
	maxAge    time.Duration
	batchSize int
	now       func() time.Time
}

func (j *staleUploadJob) Name() string { return "stale-upload-sweeper" }

func (j *staleUploadJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	var (
		candidates int
		expired    int
		raced      int
		errs       error
	)
	for {
		rows, err := j.repo.ListUploadingBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			return fmt.Errorf("query stale uploads: %w", err)
		}
		candidates += len(rows)

		var pageErr error
		for _, row := range rows {
			ok, err := j.repo.MarkFailed(ctx, row.ImageID, enums.FailureReasonUploadExpired)
			if err != nil {
				pageErr = multierr.Append(pageErr, fmt.Errorf("expire %s: %w", row.ImageID, err))
				continue
			}
			if ok {
				expired++
			} else {
				raced++
			}
		}
		errs = multierr.Append(errs, pageErr)

		// failed rows stay UPLOADING and would be listed again
		if pageErr != nil || len(rows) < j.batchSize {
			break
		}
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"max_age":    j.maxAge.String(),
		"candidates": candidates,
		"expired":    expired,
		"settled":    raced,
	})
	if errs != nil {
		return fmt.Errorf("stale upload sweep: %w", errs)
	}
	j.logg.Info(logCtx, "stale upload sweep complete")
	return nil
}
