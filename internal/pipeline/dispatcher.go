package pipeline

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency   = 4
	defaultMaxDeliveries = 5
)

// Notification is one object-created event, independent of transport.
type Notification struct {
	Bucket   string
	Key      string
	Metadata map[string]string
}

type processor interface {
	Process(ctx context.Context, imageID uuid.UUID, rawKey string) Result
	Exhaust(ctx context.Context, imageID uuid.UUID, rawKey string) Result
}

type dispatchRecorder interface {
	RecordItem(outcome string)
	ObserveBatch(size int)
}

type DispatcherParams struct {
	Worker        processor
	Keys          images.KeyScheme
	Attempts      AttemptTracker
	MaxDeliveries int
	Concurrency   int
	Metrics       dispatchRecorder
	Logger        *logger.Logger
}

// Dispatcher routes notifications to the worker, one task per item.
type Dispatcher struct {
	worker        processor
	keys          images.KeyScheme
	attempts      AttemptTracker
	maxDeliveries int64
	concurrency   int
	metrics       dispatchRecorder
	logg          *logger.Logger
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Worker == nil {
		return nil, fmt.Errorf("worker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	keys := params.Keys
	if keys.DerivativePrefix() == "" {
		keys = images.NewKeyScheme(images.DefaultDerivativePrefix)
	}
	maxDeliveries := params.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = defaultMaxDeliveries
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Dispatcher{
		worker:        params.Worker,
		keys:          keys,
		attempts:      params.Attempts,
		maxDeliveries: int64(maxDeliveries),
		concurrency:   concurrency,
		metrics:       params.Metrics,
		logg:          params.Logger,
	}, nil
}

// Dispatch handles every notification independently. A failing item never
// cancels or delays the outcome of its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, notes []Notification) BatchResult {
	results := make([]Result, len(notes))
	if d.metrics != nil {
		d.metrics.ObserveBatch(len(notes))
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, note := range notes {
		g.Go(func() error {
			results[i] = d.handle(ctx, note)
			return nil
		})
	}
	_ = g.Wait()

	if d.metrics != nil {
		for _, res := range results {
			d.metrics.RecordItem(string(res.Outcome))
		}
	}
	return BatchResult{Results: results}
}

func (d *Dispatcher) handle(ctx context.Context, note Notification) Result {
	if images.IsDerivativeMetadata(note.Metadata) {
		return Result{Key: note.Key, Outcome: OutcomeSkipped}
	}
	parsed, err := d.keys.Parse(note.Key)
	if err != nil {
		d.logg.Debug(d.logg.WithField(ctx, "object_key", note.Key), "ignoring unrecognized object key")
		return Result{Key: note.Key, Outcome: OutcomeIgnored}
	}
	if parsed.IsDerivative() {
		return Result{Key: note.Key, ImageID: idOrEmpty(parsed.ImageID), Outcome: OutcomeSkipped}
	}

	if d.attempts != nil {
		count, err := d.attempts.Next(ctx, parsed.ImageID.String())
		if err != nil {
			logCtx := d.logg.WithImageID(ctx, parsed.ImageID.String())
			d.logg.Warn(logCtx, "delivery counter unavailable: "+err.Error())
		} else if count > d.maxDeliveries {
			res := d.worker.Exhaust(ctx, parsed.ImageID, note.Key)
			d.settle(ctx, parsed.ImageID, res)
			return res
		}
	}

	res := d.worker.Process(ctx, parsed.ImageID, note.Key)
	d.settle(ctx, parsed.ImageID, res)
	return res
}

// settle clears the delivery counter once no further redelivery is expected.
func (d *Dispatcher) settle(ctx context.Context, id uuid.UUID, res Result) {
	if d.attempts == nil || res.Outcome.Retryable() {
		return
	}
	if err := d.attempts.Reset(ctx, id.String()); err != nil {
		d.logg.Warn(d.logg.WithImageID(ctx, id.String()), "failed to clear delivery counter: "+err.Error())
	}
}

func idOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
