package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultAttemptWindow = 24 * time.Hour
	memorySweepInterval  = time.Minute
)

// AttemptTracker counts deliveries per image so redelivery is bounded.
type AttemptTracker interface {
	// Next records one more delivery for imageID and returns the running count.
	Next(ctx context.Context, imageID string) (int64, error)
	// Reset forgets the count once the image reached a terminal state.
	Reset(ctx context.Context, imageID string) error
}

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) error
	DeliveryKey(imageID string) string
}

// RedisAttemptTracker keeps delivery counters in Redis. The window starts at
// the first delivery.
type RedisAttemptTracker struct {
	store  counterStore
	window time.Duration
}

func NewRedisAttemptTracker(store counterStore, window time.Duration) (*RedisAttemptTracker, error) {
	if store == nil {
		return nil, errors.New("redis client required for attempt tracker")
	}
	if window <= 0 {
		window = defaultAttemptWindow
	}
	return &RedisAttemptTracker{store: store, window: window}, nil
}

func (t *RedisAttemptTracker) Next(ctx context.Context, imageID string) (int64, error) {
	return t.store.IncrWithTTL(ctx, t.store.DeliveryKey(imageID), t.window)
}

func (t *RedisAttemptTracker) Reset(ctx context.Context, imageID string) error {
	return t.store.Del(ctx, t.store.DeliveryKey(imageID))
}

type memoryAttempt struct {
	count   int64
	expires time.Time
}

// MemoryAttemptTracker counts deliveries in process memory. It bounds
// redelivery for a single instance when no Redis is configured; counts do
// not survive a restart and are not shared between replicas.
type MemoryAttemptTracker struct {
	mu        sync.Mutex
	window    time.Duration
	entries   map[string]memoryAttempt
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryAttemptTracker(window time.Duration) *MemoryAttemptTracker {
	if window <= 0 {
		window = defaultAttemptWindow
	}
	return &MemoryAttemptTracker{
		window:  window,
		entries: map[string]memoryAttempt{},
		now:     time.Now,
	}
}

func (t *MemoryAttemptTracker) Next(_ context.Context, imageID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)
	entry, ok := t.entries[imageID]
	if !ok || !now.Before(entry.expires) {
		entry = memoryAttempt{expires: now.Add(t.window)}
	}
	entry.count++
	t.entries[imageID] = entry
	return entry.count, nil
}

func (t *MemoryAttemptTracker) Reset(_ context.Context, imageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, imageID)
	return nil
}

// sweep drops expired counters; callers hold mu.
func (t *MemoryAttemptTracker) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < memorySweepInterval {
		return
	}
	t.lastSweep = now
	for id, entry := range t.entries {
		if !now.Before(entry.expires) {
			delete(t.entries, id)
		}
	}
}
