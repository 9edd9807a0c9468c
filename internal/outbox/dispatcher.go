// Package outbox delivers the events returned by engine operations to a
// subscriber on a small pool of goroutines.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records/internal/models"
)

// ErrNotRunning is returned when publishing to a dispatcher that is not started.
var ErrNotRunning = errors.New("outbox dispatcher not running")

// Handler delivers a single event.
type Handler func(context.Context, models.Event) error

// DeliveryRecorder observes delivery attempts.
type DeliveryRecorder interface {
	RecordEventDelivery(eventType string, delivered bool)
}

// Config configures the worker pool.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Recorder   DeliveryRecorder
	Logger     *zap.Logger
}

type envelope struct {
	event   models.Event
	attempt int
}

// Dispatcher fans events out to Handler with bounded retries. Ordering is
// preserved only per worker.
type Dispatcher struct {
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	recorder   DeliveryRecorder
	logger     *zap.Logger

	queue   chan envelope
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewDispatcher builds a dispatcher for handler.
func NewDispatcher(handler Handler, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Dispatcher{
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		queue:      make(chan envelope, cfg.BufferSize),
	}
}

// LogHandler returns a handler that only logs events. Hosts without a broker
// use it so dispatch stays observable.
func LogHandler(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, e models.Event) error {
		logger.Debug("event",
			zap.String("type", string(e.Type)),
			zap.String("aggregate_id", e.AggregateID),
			zap.Time("occurred_at", e.OccurredAt))
		return nil
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(d.ctx)
	}
	d.started = true
	d.logger.Info("outbox dispatcher started", zap.Int("workers", d.workers))
}

// Stop cancels the workers and waits for them and any pending retries.
// Events still buffered are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()

	// Workers schedule retries, so they must be gone before retries are awaited.
	d.wg.Wait()
	d.retries.Wait()
	d.logger.Info("outbox dispatcher stopped")
}

// Publish queues events in order. It blocks while the buffer is full and
// fails once ctx or the dispatcher is done.
func (d *Dispatcher) Publish(ctx context.Context, events ...models.Event) error {
	for _, e := range events {
		if err := d.enqueue(ctx, envelope{event: e}); err != nil {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, env envelope) error {
	d.mu.Lock()
	running := d.started
	runCtx := d.ctx
	d.mu.Unlock()

	if !running {
		return ErrNotRunning
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return ErrNotRunning
	case d.queue <- env:
		return nil
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-d.queue:
			err := d.handler(ctx, env.event)
			if d.recorder != nil {
				d.recorder.RecordEventDelivery(string(env.event.Type), err == nil)
			}
			if err != nil {
				d.retry(ctx, env, err)
			}
		}
	}
}

func (d *Dispatcher) retry(ctx context.Context, env envelope, err error) {
	if ctx.Err() != nil {
		d.logger.Warn("event delivery failed during shutdown",
			zap.String("type", string(env.event.Type)),
			zap.String("aggregate_id", env.event.AggregateID),
			zap.Error(err))
		return
	}
	env.attempt++
	if env.attempt > d.maxRetries {
		d.logger.Error("event delivery abandoned",
			zap.String("type", string(env.event.Type)),
			zap.String("aggregate_id", env.event.AggregateID),
			zap.Int("attempts", env.attempt),
			zap.Error(err))
		return
	}
	d.logger.Warn("event delivery failed, retrying",
		zap.String("type", string(env.event.Type)),
		zap.String("aggregate_id", env.event.AggregateID),
		zap.Int("attempt", env.attempt),
		zap.Error(err))

	d.retries.Add(1)
	go func() {
		defer d.retries.Done()
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := d.enqueue(ctx, env); err != nil {
				d.logger.Error("failed to requeue event", zap.String("type", string(env.event.Type)), zap.Error(err))
			}
		}
	}()
}
