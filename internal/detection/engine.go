// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/metrics"
)

// Config configures the engine and its built-in heuristics.
type Config struct {
	// Window is how far back each evaluation pass looks.
	Window time.Duration

	// BurstMedium and BurstHigh are failed-login counts for medium and high.
	BurstMedium int
	BurstHigh   int

	// MultiDeviceThreshold is the distinct user-agent count that must be
	// exceeded.
	MultiDeviceThreshold int

	// SessionGrace is how long after a timeout a new login clears it.
	SessionGrace time.Duration

	// UserAgentMode is UserAgentRaw or UserAgentFamily.
	UserAgentMode string

	// PollInterval runs a pass even when no audit events arrive.
	PollInterval time.Duration

	// TriggerInterval and TriggerBurst pace passes triggered by new events.
	TriggerInterval time.Duration
	TriggerBurst    int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Window:               24 * time.Hour,
		BurstMedium:          3,
		BurstHigh:            5,
		MultiDeviceThreshold: 3,
		SessionGrace:         5 * time.Minute,
		UserAgentMode:        UserAgentRaw,
		PollInterval:         time.Minute,
		TriggerInterval:      2 * time.Second,
		TriggerBurst:         1,
	}
}

// Engine evaluates heuristics over the audit window and owns alert state.
type Engine struct {
	config   Config
	sink     audit.Sink
	store    AlertStore
	recorder audit.Recorder

	mu          sync.RWMutex
	detectors   []Detector
	broadcaster AlertBroadcaster
	subscriber  message.Subscriber

	// evalMu serializes evaluation passes and resolutions so reconciliation
	// against stored alerts never interleaves.
	evalMu sync.Mutex

	now func() time.Time
}

// NewEngine creates an engine with the three built-in detectors. sink is
// read for RunOnce; recorder receives alert_raised and alert_resolved events.
func NewEngine(sink audit.Sink, store AlertStore, recorder audit.Recorder, config Config) (*Engine, error) {
	normalize, err := Normalizer(config.UserAgentMode)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	e := &Engine{
		config:   config,
		sink:     sink,
		store:    store,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}

	e.RegisterDetector(&FailedLoginBurst{Medium: config.BurstMedium, High: config.BurstHigh})
	e.RegisterDetector(&MultiDevice{Threshold: config.MultiDeviceThreshold, Normalize: normalize})
	e.RegisterDetector(&SessionAnomaly{Grace: config.SessionGrace})
	return e, nil
}

// RegisterDetector adds a detector, replacing any with the same kind.
func (e *Engine) RegisterDetector(detector Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, d := range e.detectors {
		if d.Kind() == detector.Kind() {
			e.detectors[i] = detector
			return
		}
	}
	e.detectors = append(e.detectors, detector)
	logging.Debug().Str("detector", string(detector.Kind())).Msg("Registered detector")
}

// SetBroadcaster sets where alert changes are pushed. nil disables it.
func (e *Engine) SetBroadcaster(b AlertBroadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// SetSubscriber makes RunWithContext evaluate whenever an audit event is
// published on audit.TopicEvents.
func (e *Engine) SetSubscriber(s message.Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriber = s
}

// Evaluate runs every detector over window and returns the alerts that were
// created or escalated by this pass. Re-running on the same window returns
// nothing new. window may be unordered; it is copied before use.
func (e *Engine) Evaluate(ctx context.Context, window []audit.Event) ([]Alert, error) {
	e.mu.RLock()
	detectors := append([]Detector(nil), e.detectors...)
	e.mu.RUnlock()

	snapshot := snapshotWindow(window)

	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	now := e.now()
	var (
		changed []Alert
		errs    []error
	)
	for _, d := range detectors {
		for _, f := range d.Detect(snapshot, now) {
			alert, err := e.reconcile(ctx, f, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", f.Kind, f.SubjectID, err))
				continue
			}
			if alert != nil {
				changed = append(changed, *alert)
			}
		}
	}
	return changed, errors.Join(errs...)
}

// snapshotWindow copies events, drops duplicate IDs and sorts by time.
func snapshotWindow(window []audit.Event) []audit.Event {
	seen := make(map[string]struct{}, len(window))
	out := make([]audit.Event, 0, len(window))
	for i := range window {
		ev := window[i]
		if ev.ID != "" {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// reconcile maps a finding onto stored alerts. It returns the alert when one
// was raised or escalated and nil when nothing user-visible changed.
func (e *Engine) reconcile(ctx context.Context, f Finding, now time.Time) (*Alert, error) {
	key := f.Key()
	existing, err := e.store.ByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	covered := make(map[string]struct{})
	for i := range existing {
		a := &existing[i]
		if !a.Resolved {
			return e.update(ctx, a, f, now)
		}
		for _, id := range a.Evidence {
			covered[id] = struct{}{}
		}
	}

	if len(existing) > 0 {
		fresh := false
		for _, id := range f.Evidence {
			if _, ok := covered[id]; !ok {
				fresh = true
				break
			}
		}
		if !fresh {
			return nil, nil
		}
	}

	alert := &Alert{
		ID:        uuid.NewString(),
		Kind:      f.Kind,
		SubjectID: f.SubjectID,
		Severity:  f.Severity,
		Message:   f.Message,
		RaisedAt:  now,
		UpdatedAt: now,
		Date:      key.Date,
		Evidence:  append([]string(nil), f.Evidence...),
	}
	if err := e.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	metrics.RecordAlert(string(alert.Kind), string(alert.Severity))
	e.recordAlertEvent(audit.ActionAlertRaised, alert, now)
	e.broadcast(MessageAlertRaised, alert)

	logging.Warn().
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Str("subject_id", logging.MaskIdentifier(alert.SubjectID)).
		Int("evidence", len(alert.Evidence)).
		Msg("Security alert raised")
	return alert, nil
}

// update merges a finding into an open alert. Severity only ever rises.
func (e *Engine) update(ctx context.Context, open *Alert, f Finding, now time.Time) (*Alert, error) {
	merged, added := mergeEvidence(open.Evidence, f.Evidence)
	escalate := f.Severity.Rank() > open.Severity.Rank()
	if !escalate && added == 0 {
		return nil, nil
	}

	open.Evidence = merged
	open.Message = f.Message
	open.UpdatedAt = now
	if escalate {
		open.Severity = f.Severity
	}
	if err := e.store.Save(ctx, open); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	if !escalate {
		return nil, nil
	}

	metrics.RecordAlert(string(open.Kind), string(open.Severity))
	e.recordAlertEvent(audit.ActionAlertRaised, open, now)
	e.broadcast(MessageAlertEscalated, open)

	logging.Warn().
		Str("alert_id", open.ID).
		Str("kind", string(open.Kind)).
		Str("severity", string(open.Severity)).
		Str("subject_id", logging.MaskIdentifier(open.SubjectID)).
		Msg("Security alert escalated")
	return open, nil
}

func mergeEvidence(existing, incoming []string) ([]string, int) {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	merged := append([]string(nil), existing...)
	added := 0
	for _, id := range incoming {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
		added++
	}
	return merged, added
}

// Resolve marks an alert resolved with an optional note. Resolution is
// permanent; resolving an already resolved alert returns it unchanged.
func (e *Engine) Resolve(ctx context.Context, id, resolvedBy, note string) (*Alert, error) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	alert, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Resolved {
		return alert, nil
	}

	now := e.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy
	alert.ResolutionNote = note
	alert.UpdatedAt = now
	if err := e.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	metrics.AlertsResolved.Inc()
	e.recordAlertEvent(audit.ActionAlertResolved, alert, now)
	e.broadcast(MessageAlertResolved, alert)

	logging.Ctx(ctx).Info().
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Str("resolved_by", resolvedBy).
		Msg("Security alert resolved")
	return alert, nil
}

// Get returns one alert.
func (e *Engine) Get(ctx context.Context, id string) (*Alert, error) {
	return e.store.Get(ctx, id)
}

// List returns stored alerts, newest first.
func (e *Engine) List(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	return e.store.List(ctx, filter)
}

func (e *Engine) recordAlertEvent(action audit.Action, alert *Alert, now time.Time) {
	ev := audit.NewEvent(action, alert.SubjectID).
		WithMeta("alert_id", alert.ID).
		WithMeta("kind", string(alert.Kind)).
		WithMeta("severity", string(alert.Severity))
	ev.CreatedAt = now
	if alert.ResolvedBy != "" {
		ev.WithMeta("resolved_by", alert.ResolvedBy)
	}
	if alert.ResolutionNote != "" {
		ev.WithMeta("note", alert.ResolutionNote)
	}
	e.recorder.Record(ev)
}

func (e *Engine) broadcast(messageType string, alert *Alert) {
	e.mu.RLock()
	b := e.broadcaster
	e.mu.RUnlock()
	if b == nil {
		return
	}
	b.BroadcastJSON(messageType, alert.clone())
}

// RunOnce queries the audit window ending now and evaluates it. Failures
// are logged and counted, never returned.
func (e *Engine) RunOnce(ctx context.Context) []Alert {
	start := time.Now()
	since := e.now().Add(-e.config.Window)

	window, err := e.sink.Query(ctx, audit.Query{Since: since})
	if err != nil {
		metrics.RecordEvaluation(time.Since(start), err)
		logging.Error().Err(err).Msg("Anomaly evaluation could not read audit window")
		return nil
	}

	alerts, err := e.Evaluate(ctx, window)
	metrics.RecordEvaluation(time.Since(start), err)
	if err != nil {
		logging.Error().Err(err).Int("events", len(window)).Msg("Anomaly evaluation failed")
	}
	return alerts
}

// RunWithContext evaluates on every PollInterval tick and, when a subscriber
// is set, after new audit events, paced by a rate limiter. It blocks until
// ctx is canceled and is meant to run under suture supervision.
func (e *Engine) RunWithContext(ctx context.Context) error {
	e.mu.RLock()
	subscriber := e.subscriber
	e.mu.RUnlock()

	var events <-chan *message.Message
	if subscriber != nil {
		ch, err := subscriber.Subscribe(ctx, audit.TopicEvents)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", audit.TopicEvents, err)
		}
		events = ch
	}

	poll := e.config.PollInterval
	if poll <= 0 {
		poll = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	limiter := rate.NewLimiter(rate.Every(e.config.TriggerInterval), max(e.config.TriggerBurst, 1))
	trigger := make(chan struct{}, 1)

	logging.Info().
		Dur("window", e.config.Window).
		Dur("poll_interval", poll).
		Bool("event_triggered", events != nil).
		Msg("Anomaly engine started")

	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Anomaly engine stopped")
			return ctx.Err()

		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			msg.Ack()
			if triggersEvaluation(msg) {
				select {
				case trigger <- struct{}{}:
				default:
				}
			}

		case <-trigger:
			if err := limiter.Wait(ctx); err != nil {
				continue
			}
			e.RunOnce(ctx)

		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// triggersEvaluation ignores the engine's own alert events.
func triggersEvaluation(msg *message.Message) bool {
	return !strings.HasPrefix(msg.Metadata.Get(audit.MetadataAction), "alert_")
}
