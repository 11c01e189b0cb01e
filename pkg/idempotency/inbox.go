// Package idempotency provides the Inbox pattern for exactly-once handling
// of repeated booking requests. Entries live in process memory; losing them
// on restart is acceptable because the store they guard is equally volatile.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status represents the processing status of an inbox entry
type Status string

const (
	StatusStarted  Status = "STARTED"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// entry is an idempotency inbox record
type entry struct {
	status    Status
	result    json.RawMessage
	updatedAt time.Time
	expiresAt time.Time
}

// InboxConfig holds configuration for the inbox
type InboxConfig struct {
	// DefaultTTL is the time-to-live for finished entries
	DefaultTTL time.Duration
	// CleanupInterval is how often to clean expired entries
	CleanupInterval time.Duration
	// RecoveryTimeout is when to consider a STARTED entry as stale
	RecoveryTimeout time.Duration
}

// DefaultInboxConfig returns sensible defaults
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: time.Hour,
		RecoveryTimeout: time.Minute,
	}
}

// ErrMessageInProgress indicates the key is currently being processed
var ErrMessageInProgress = errors.New("message in progress by another handler")

// ProcessResult represents the result of idempotent processing
type ProcessResult struct {
	IsNew  bool
	Result json.RawMessage
}

// ProcessFunc is the function signature for idempotent handlers
type ProcessFunc func(ctx context.Context) (json.RawMessage, error)

// Inbox manages idempotent request processing
type Inbox struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  InboxConfig
	logger  *zap.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInbox creates a new inbox manager and starts its cleanup loop.
func NewInbox(cfg InboxConfig, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultInboxConfig().DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultInboxConfig().CleanupInterval
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultInboxConfig().RecoveryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	i := &Inbox{
		entries: make(map[string]*entry),
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("inbox"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go i.cleanupLoop()
	return i
}

// Process executes a handler with idempotency guarantees: the first caller
// with a given key runs fn; repeat callers get the first outcome back with
// IsNew=false; concurrent callers on an in-flight key get
// ErrMessageInProgress.
func (i *Inbox) Process(ctx context.Context, key string, fn ProcessFunc) (*ProcessResult, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(attribute.String("idempotency_key", key)))
	defer span.End()

	claimed, cached, err := i.claim(key)
	if err != nil {
		return nil, err
	}
	if !claimed {
		span.SetAttributes(attribute.Bool("duplicate", true))
		return &ProcessResult{IsNew: false, Result: cached}, nil
	}

	result, err := fn(ctx)

	i.mu.Lock()
	e := i.entries[key]
	if err != nil {
		// Failed attempts may be retried; drop the claim.
		delete(i.entries, key)
	} else {
		e.status = StatusFinished
		e.result = result
		e.updatedAt = time.Now()
		e.expiresAt = time.Now().Add(i.config.DefaultTTL)
	}
	i.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ProcessResult{IsNew: true, Result: result}, nil
}

// claim marks the key as in-flight. Returns claimed=false with the cached
// result when the key already finished.
func (i *Inbox) claim(key string) (claimed bool, cached json.RawMessage, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if e, ok := i.entries[key]; ok {
		switch e.status {
		case StatusFinished:
			return false, e.result, nil
		case StatusStarted:
			if time.Since(e.updatedAt) < i.config.RecoveryTimeout {
				return false, nil, ErrMessageInProgress
			}
			// Stale claim from an abandoned request; take it over.
			i.logger.Warn("recovering stale inbox entry", zap.String("key", key))
		}
	}

	i.entries[key] = &entry{
		status:    StatusStarted,
		updatedAt: time.Now(),
		expiresAt: time.Now().Add(i.config.DefaultTTL),
	}
	return true, nil, nil
}

// Len returns the number of live entries.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries)
}

// Close stops the cleanup loop.
func (i *Inbox) Close() {
	i.cancel()
	<-i.done
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)
	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			i.cleanup()
		}
	}
}

func (i *Inbox) cleanup() {
	now := time.Now()
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for key, e := range i.entries {
		if now.After(e.expiresAt) {
			delete(i.entries, key)
			removed++
		}
	}
	if removed > 0 {
		i.logger.Debug("inbox cleanup", zap.Int("removed", removed))
	}
}
