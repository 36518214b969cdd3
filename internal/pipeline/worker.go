package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/internal/thumbnail"
	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cloudgallery/pkg/errors"
	"github.com/angelmondragon/cloudgallery/pkg/labels"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/angelmondragon/cloudgallery/pkg/storage"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultMaxLabels   = 5
	defaultRetries     = 3
)

// BlobStore reads raw uploads and writes derivatives.
type BlobStore interface {
	GetObject(ctx context.Context, key string) (*storage.Object, error)
	PutObject(ctx context.Context, key string, body []byte, opts storage.PutOptions) error
}

// LabelDetector returns ranked label names for an encoded image.
type LabelDetector interface {
	DetectLabels(ctx context.Context, image []byte, maxLabels int) ([]string, error)
}

type imageStore interface {
	FindByID(ctx context.Context, imageID string) (*models.Image, error)
	MarkReady(ctx context.Context, imageID string, labels []string, thumbKey string) (bool, error)
	MarkFailed(ctx context.Context, imageID string, reason enums.FailureReason) (bool, error)
}

type transformRecorder interface {
	ObserveTransform(outcome string, duration time.Duration)
}

type WorkerParams struct {
	Repo         imageStore
	Blobs        BlobStore
	Labels       LabelDetector
	Keys         images.KeyScheme
	Thumbnail    thumbnail.Options
	MaxLabels    int
	CallTimeout  time.Duration
	FetchRetries int
	LabelRetries int
	RetryBase    time.Duration
	Metrics      transformRecorder
	Logger       *logger.Logger
}

// Worker turns one raw upload into a derivative plus labels and settles the
// record. It keeps no per-image state between calls.
type Worker struct {
	repo        imageStore
	blobs       BlobStore
	detector    LabelDetector
	keys        images.KeyScheme
	thumbs      thumbnail.Options
	maxLabels   int
	callTimeout time.Duration
	fetchRetry  retryBudget
	labelRetry  retryBudget
	metrics     transformRecorder
	logg        *logger.Logger
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("image repository required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Labels == nil {
		return nil, fmt.Errorf("label detector required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	keys := params.Keys
	if keys.DerivativePrefix() == "" {
		keys = images.NewKeyScheme(images.DefaultDerivativePrefix)
	}
	maxLabels := params.MaxLabels
	if maxLabels <= 0 {
		maxLabels = defaultMaxLabels
	}
	timeout := params.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	fetchRetries := params.FetchRetries
	if fetchRetries <= 0 {
		fetchRetries = defaultRetries
	}
	labelRetries := params.LabelRetries
	if labelRetries <= 0 {
		labelRetries = defaultRetries
	}
	return &Worker{
		repo:        params.Repo,
		blobs:       params.Blobs,
		detector:    params.Labels,
		keys:        keys,
		thumbs:      params.Thumbnail,
		maxLabels:   maxLabels,
		callTimeout: timeout,
		fetchRetry:  retryBudget{retries: fetchRetries, base: params.RetryBase},
		labelRetry:  retryBudget{retries: labelRetries, base: params.RetryBase},
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Process handles one raw object. The returned Result is never retryable
// unless the record is still UPLOADING and a later delivery can finish it.
func (w *Worker) Process(ctx context.Context, imageID uuid.UUID, rawKey string) Result {
	start := time.Now()
	ctx = w.logg.WithImageID(ctx, imageID.String())
	ctx = w.logg.WithField(ctx, "object_key", rawKey)

	res := w.process(ctx, imageID, rawKey)
	res.Key = rawKey
	res.ImageID = imageID.String()

	if w.metrics != nil {
		w.metrics.ObserveTransform(string(res.Outcome), time.Since(start))
	}
	w.logResult(ctx, res)
	return res
}

func (w *Worker) process(ctx context.Context, imageID uuid.UUID, rawKey string) Result {
	id := imageID.String()

	record, err := w.findRecord(ctx, id)
	switch {
	case errors.Is(err, images.ErrNotFound):
		return Result{Outcome: OutcomeIgnored, Err: pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "no record for object")}
	case err != nil:
		return retryResult(pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "load image record"))
	case record.Status.IsTerminal():
		return Result{Outcome: OutcomeDuplicate}
	}

	raw, err := w.fetch(ctx, rawKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrObjectTooLarge):
		return w.fail(ctx, id, enums.FailureReasonFetch, pkgerrors.Wrap(pkgerrors.CodeFetch, err, "fetch raw object"))
	case err != nil:
		return retryResult(pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "fetch raw object"))
	}

	rendered, err := thumbnail.Render(raw.Body, w.thumbs)
	if err != nil {
		return w.fail(ctx, id, enums.FailureReasonDecode, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "render thumbnail"))
	}

	thumbKey := w.keys.DerivativeKey(imageID)
	err = withTimeout(ctx, w.callTimeout, func(callCtx context.Context) error {
		return w.blobs.PutObject(callCtx, thumbKey, rendered.Thumbnail, storage.PutOptions{
			ContentType: images.DerivativeContentType,
			Metadata:    images.DerivativeMetadata(),
		})
	})
	if err != nil {
		return retryResult(pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "write derivative"))
	}

	names, err := w.detect(ctx, rendered.LabelInput)
	if err != nil {
		if ctx.Err() != nil {
			return retryResult(pkgerrors.Wrap(pkgerrors.CodeLabelService, err, "detect labels"))
		}
		return w.fail(ctx, id, enums.FailureReasonLabelService, pkgerrors.Wrap(pkgerrors.CodeLabelService, err, "detect labels"))
	}

	updated, err := w.repo.MarkReady(ctx, id, names, thumbKey)
	if err != nil {
		return retryResult(pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "mark record ready"))
	}
	if !updated {
		return Result{Outcome: OutcomeDuplicate}
	}
	return Result{Outcome: OutcomeReady, Labels: names, ThumbKey: thumbKey}
}

// Exhaust settles a record whose delivery budget ran out.
func (w *Worker) Exhaust(ctx context.Context, imageID uuid.UUID, rawKey string) Result {
	ctx = w.logg.WithImageID(ctx, imageID.String())
	ctx = w.logg.WithField(ctx, "object_key", rawKey)
	res := w.fail(ctx, imageID.String(), enums.FailureReasonRetriesExhausted,
		pkgerrors.New(pkgerrors.CodeInternal, "delivery attempts exhausted"))
	res.Key = rawKey
	res.ImageID = imageID.String()
	w.logResult(ctx, res)
	return res
}

func (w *Worker) findRecord(ctx context.Context, id string) (*models.Image, error) {
	var record *models.Image
	err := withTimeout(ctx, w.callTimeout, func(callCtx context.Context) error {
		found, err := w.repo.FindByID(callCtx, id)
		record = found
		return err
	})
	return record, err
}

// fetch retries only a missing object, which covers read-after-write lag on
// the notification path. Any other error surfaces immediately.
func (w *Worker) fetch(ctx context.Context, key string) (*storage.Object, error) {
	var obj *storage.Object
	err := w.fetchRetry.do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, w.callTimeout, func(callCtx context.Context) error {
			found, err := w.blobs.GetObject(callCtx, key)
			if errors.Is(err, storage.ErrObjectNotFound) {
				return retry.RetryableError(err)
			}
			if err != nil {
				return err
			}
			obj = found
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (w *Worker) detect(ctx context.Context, image []byte) ([]string, error) {
	var names []string
	err := w.labelRetry.do(ctx, func(ctx context.Context) error {
		return withTimeout(ctx, w.callTimeout, func(callCtx context.Context) error {
			found, err := w.detector.DetectLabels(callCtx, image, w.maxLabels)
			if err != nil {
				return retry.RetryableError(err)
			}
			names = found
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return labels.Collect(names, w.maxLabels), nil
}

func (w *Worker) fail(ctx context.Context, id string, reason enums.FailureReason, cause error) Result {
	updated, err := w.repo.MarkFailed(ctx, id, reason)
	if err != nil {
		return retryResult(pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "mark record failed"))
	}
	if !updated {
		return Result{Outcome: OutcomeDuplicate, Reason: reason, Err: cause}
	}
	return Result{Outcome: OutcomeFailed, Reason: reason, Err: cause}
}

func (w *Worker) logResult(ctx context.Context, res Result) {
	ctx = w.logg.WithField(ctx, "outcome", string(res.Outcome))
	switch res.Outcome {
	case OutcomeReady:
		w.logg.Info(w.logg.WithField(ctx, "label_count", len(res.Labels)), "image ready")
	case OutcomeFailed:
		w.logg.Warn(w.logg.WithField(ctx, "reason", res.Reason.String()), "image failed: "+errString(res.Err))
	case OutcomeRetry:
		w.logg.Error(ctx, "image processing will be retried", res.Err)
	default:
		w.logg.Info(ctx, "image processing skipped")
	}
}

func retryResult(err error) Result {
	return Result{Outcome: OutcomeRetry, Err: err}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
