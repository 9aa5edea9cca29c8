// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package audit

import (
	"context"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/metrics"
)

// WriterConfig bounds the best-effort write path.
type WriterConfig struct {
	// BufferSize is the number of events that may wait for delivery.
	BufferSize int

	// MaxRetries is the retry budget per event after the first attempt.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles per retry.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps a single backoff delay.
	RetryMaxDelay time.Duration

	// AppendTimeout bounds one Append call.
	AppendTimeout time.Duration

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32

	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout time.Duration

	// DrainTimeout bounds delivery of buffered events on shutdown.
	DrainTimeout time.Duration
}

// DefaultWriterConfig returns production defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BufferSize:         1024,
		MaxRetries:         5,
		RetryBaseDelay:     100 * time.Millisecond,
		RetryMaxDelay:      5 * time.Second,
		AppendTimeout:      5 * time.Second,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
		DrainTimeout:       5 * time.Second,
	}
}

// WriterStats is a snapshot of writer counters.
type WriterStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Retried uint64 `json:"retried"`
	Dropped uint64 `json:"dropped"`
}

// Writer delivers events to a Sink without blocking the caller.
//
// A single goroutine (Serve) drains the buffer so events from one writer
// reach the sink in the order they were recorded.
type Writer struct {
	sink    Sink
	config  WriterConfig
	queue   chan *Event
	breaker *gobreaker.CircuitBreaker[struct{}]

	written atomic.Uint64
	retried atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter creates a buffered writer in front of sink.
func NewWriter(sink Sink, config WriterConfig) *Writer {
	defaults := DefaultWriterConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = config.RetryBaseDelay
	}
	if config.AppendTimeout <= 0 {
		config.AppendTimeout = defaults.AppendTimeout
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = defaults.BreakerFailures
	}
	if config.BreakerOpenTimeout <= 0 {
		config.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}

	failures := config.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "audit-sink",
		MaxRequests: 1,
		Timeout:     config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.AuditBreakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Audit sink circuit breaker state changed")
		},
	})

	return &Writer{
		sink:    sink,
		config:  config,
		queue:   make(chan *Event, config.BufferSize),
		breaker: breaker,
	}
}

// Record queues event for delivery. It never blocks; when the buffer is full
// the event is dropped with a warning.
func (w *Writer) Record(event *Event) {
	if err := event.normalize(); err != nil {
		logging.Warn().Err(err).Msg("Ignoring invalid audit event")
		return
	}

	select {
	case w.queue <- event:
		metrics.AuditBufferDepth.Set(float64(len(w.queue)))
	default:
		w.dropped.Add(1)
		metrics.RecordAuditDrop("buffer_full")
		logging.Warn().
			Str("event_id", event.ID).
			Str("action", string(event.Action)).
			Msg("Audit buffer full, dropping event")
	}
}

// Query reads through to the underlying sink.
func (w *Writer) Query(ctx context.Context, q Query) ([]Event, error) {
	return w.sink.Query(ctx, q)
}

// Serve delivers queued events until ctx is canceled, then drains what is
// left within DrainTimeout. It implements suture.Service.
func (w *Writer) Serve(ctx context.Context) error {
	for {
		// Shutdown wins over pending events; drain delivers them on its own context.
		if ctx.Err() != nil {
			w.drain()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.queue:
			metrics.AuditBufferDepth.Set(float64(len(w.queue)))
			w.deliver(ctx, event)
		}
	}
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.DrainTimeout)
	defer cancel()

	for {
		select {
		case event := <-w.queue:
			w.deliver(ctx, event)
		default:
			metrics.AuditBufferDepth.Set(0)
			return
		}
	}
}

// deliver appends one event, retrying with exponential backoff until the
// retry budget is spent or ctx ends.
func (w *Writer) deliver(ctx context.Context, event *Event) {
	delay := w.config.RetryBaseDelay

	for attempt := 0; ; attempt++ {
		_, err := w.breaker.Execute(func() (struct{}, error) {
			appendCtx, cancel := context.WithTimeout(ctx, w.config.AppendTimeout)
			defer cancel()
			return struct{}{}, w.sink.Append(appendCtx, event)
		})
		if err == nil {
			w.written.Add(1)
			metrics.AuditEventsWritten.Inc()
			return
		}

		if attempt >= w.config.MaxRetries || ctx.Err() != nil {
			w.dropped.Add(1)
			metrics.RecordAuditDrop("retries_exhausted")
			logging.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("action", string(event.Action)).
				Int("attempts", attempt+1).
				Msg("Audit event dropped after retry budget")
			return
		}

		w.retried.Add(1)
		metrics.AuditWriteRetries.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}

		delay *= 2
		if delay > w.config.RetryMaxDelay {
			delay = w.config.RetryMaxDelay
		}
	}
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Queued:  len(w.queue),
		Written: w.written.Load(),
		Retried: w.retried.Load(),
		Dropped: w.dropped.Load(),
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *Writer) String() string {
	return "audit-writer"
}
