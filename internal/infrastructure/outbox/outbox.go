// Package outbox provides buffered, retried publication of booking events.
// Bookings commit in memory before the broker is involved, so the outbox
// absorbs broker outages: events queue up and a bounded worker pool drains
// them with retry, never blocking the request path.
package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/observability/metrics"
	"github.com/medbook/go-gpc/pkg/workerpool"
)

// Publisher defines the broker interface the outbox drains into.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Entry is one event awaiting publication.
type Entry struct {
	ID        int64
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Config holds configuration for the outbox.
type Config struct {
	// Workers is the number of concurrent publishers
	Workers int
	// QueueSize is the number of events that may wait for publication
	QueueSize int
	// MaxAttempts is the number of delivery attempts per event
	MaxAttempts int
	// RetryDelay is the base delay between attempts, scaled per attempt
	RetryDelay time.Duration
	// PublishTimeout bounds a single broker round trip
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      4096,
		MaxAttempts:    5,
		RetryDelay:     200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Outbox buffers booking events and drains them to the broker.
type Outbox struct {
	config    Config
	publisher Publisher
	pool      *workerpool.Pool
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	seq       int64
}

// New creates an outbox draining into the given publisher. Metrics may be nil.
func New(publisher Publisher, cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Outbox, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}

	o := &Outbox{
		config:    cfg,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
	}

	// Retry handling lives in deliver so exhausted events can be counted as
	// dropped; the pool only provides the queue and concurrency bound.
	pool, err := workerpool.New(workerpool.Config{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		MaxRetries: 0,
	}, o.deliver, logger)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	o.pool = pool
	return o, nil
}

// Start launches the drain workers.
func (o *Outbox) Start() {
	o.pool.Start()
	o.logger.Info("outbox started",
		zap.Int("workers", o.config.Workers),
		zap.Int("queue_size", o.config.QueueSize))
}

// Stop drains queued events and shuts the workers down.
func (o *Outbox) Stop() error {
	return o.pool.Stop()
}

// Enqueue buffers an event for publication. Fails only when the queue is
// full or the outbox is shutting down.
func (o *Outbox) Enqueue(topic, key string, payload []byte) error {
	entry := &Entry{
		ID:        atomic.AddInt64(&o.seq, 1),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	err := o.pool.Submit(&workerpool.Task{
		ID:      fmt.Sprintf("outbox-%d", entry.ID),
		Payload: entry,
	})
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	if o.metrics != nil {
		o.metrics.OutboxPending.Set(float64(o.pool.Stats().QueueDepth))
	}
	return nil
}

// deliver publishes one entry with bounded retries. It always reports
// success to the pool; exhausted events are counted and dropped here.
func (o *Outbox) deliver(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	entry := task.Payload.(*Entry)

	spanCtx, span := o.tracer.Start(ctx, "outbox_deliver",
		trace.WithAttributes(
			attribute.String("topic", entry.Topic),
			attribute.Int64("entry_id", entry.ID)))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		publishCtx, cancel := context.WithTimeout(spanCtx, o.config.PublishTimeout)
		lastErr = o.publisher.Publish(publishCtx, entry.Topic, entry.Key, entry.Payload)
		cancel()

		if lastErr == nil {
			if o.metrics != nil {
				o.metrics.EventsPublished.Inc()
				o.metrics.OutboxPending.Set(float64(o.pool.Stats().QueueDepth))
			}
			return &workerpool.Result{TaskID: task.ID, Success: true}
		}

		if attempt < o.config.MaxAttempts {
			select {
			case <-ctx.Done():
				attempt = o.config.MaxAttempts
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}
	}

	span.RecordError(lastErr)
	o.logger.Error("booking event dropped",
		zap.String("topic", entry.Topic),
		zap.Int64("entry_id", entry.ID),
		zap.Int("attempts", o.config.MaxAttempts),
		zap.Error(lastErr))
	if o.metrics != nil {
		o.metrics.EventsDropped.Inc()
		o.metrics.OutboxPending.Set(float64(o.pool.Stats().QueueDepth))
	}
	return &workerpool.Result{TaskID: task.ID, Success: true}
}

// Stats exposes the underlying pool statistics.
func (o *Outbox) Stats() workerpool.Stats {
	return o.pool.Stats()
}
