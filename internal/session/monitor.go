// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package session enforces idle timeouts on authenticated sessions.
//
// A session is ACTIVE from Begin until it expires (no activity for
// IdleTimeout) or is ended by logout. Both outcomes are terminal: a user who
// comes back needs a new authentication, which creates a new session.
//
// Each monitored session owns one watcher goroutine polling at PollInterval.
// StopMonitor cancels it and waits for it to exit; once StopMonitor returns
// the timeout callback for that session can no longer fire.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/logging"
	"github.com/tomtom215/campaignguard/internal/metrics"
)

// MaxIDLength bounds session and subject identifiers.
const MaxIDLength = 128

// Errors returned by the monitor.
var (
	ErrInvalidSession  = errors.New("invalid session id")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionEnded    = errors.New("session ended")
	ErrSessionExists   = errors.New("session already active for another subject")
	ErrUnknownSignal   = errors.New("unknown activity signal")
	ErrMonitorStopped  = errors.New("session monitor stopped")
)

// State is the lifecycle state of a session.
type State string

// Session states. Expired and ended are terminal.
const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateEnded   State = "ended"
)

// Activity signals accepted by default.
const (
	SignalPointer = "pointer"
	SignalKey     = "key"
	SignalScroll  = "scroll"
	SignalTouch   = "touch"
)

// Config holds monitor settings.
type Config struct {
	// IdleTimeout is the maximum gap between activity before expiry.
	IdleTimeout time.Duration

	// PollInterval is how often each watcher checks for expiry.
	PollInterval time.Duration

	// Signals is the set of accepted activity signal names.
	Signals []string

	// Retention is how long terminal sessions stay readable through Get.
	Retention time.Duration
}

// DefaultConfig returns an 8h idle timeout checked every minute.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  8 * time.Hour,
		PollInterval: time.Minute,
		Signals:      []string{SignalPointer, SignalKey, SignalScroll, SignalTouch},
		Retention:    time.Hour,
	}
}

// Session is a read-only snapshot of a session.
type Session struct {
	SessionID      string    `json:"session_id"`
	SubjectID      string    `json:"subject_id"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	Monitored      bool      `json:"monitored"`
}

// TimeoutFunc is invoked once when a monitored session expires. It runs on
// the watcher goroutine after the watcher is detached, so it may call any
// Monitor method.
type TimeoutFunc func(Session)

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type entry struct {
	mu        sync.Mutex
	id        string
	subjectID string
	state     State
	createdAt time.Time
	lastSeen  time.Time
	endedAt   time.Time
	onTimeout TimeoutFunc
	watcher   *watcher
	// released is set by StopMonitor: the caller took over the session's
	// lifecycle, so the sweep must not expire it.
	released bool
}

// Monitor tracks activity and enforces idle timeouts.
type Monitor struct {
	config   Config
	signals  map[string]struct{}
	recorder audit.Recorder
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
	// stopped is set by StopAll under mu; no watcher starts afterwards.
	stopped bool

	wg       sync.WaitGroup
	watchers atomic.Int64
}

// NewMonitor creates a monitor. A nil recorder discards audit events.
func NewMonitor(config Config, recorder audit.Recorder) *Monitor {
	defaults := DefaultConfig()
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if len(config.Signals) == 0 {
		config.Signals = defaults.Signals
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}

	signals := make(map[string]struct{}, len(config.Signals))
	for _, s := range config.Signals {
		signals[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	return &Monitor{
		config:   config,
		signals:  signals,
		recorder: recorder,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

func validID(id string) bool {
	if id == "" || len(id) > MaxIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r == 0x7f {
			return false
		}
	}
	return true
}

// snapshot must be called with e.mu held.
func (m *Monitor) snapshot(e *entry) Session {
	return Session{
		SessionID:      e.id,
		SubjectID:      e.subjectID,
		State:          e.state,
		CreatedAt:      e.createdAt,
		LastActivityAt: e.lastSeen,
		ExpiresAt:      e.lastSeen.Add(m.config.IdleTimeout),
		EndedAt:        e.endedAt,
		Monitored:      e.watcher != nil,
	}
}

func (m *Monitor) lookup(sessionID string) (*entry, error) {
	if !validID(sessionID) {
		return nil, ErrInvalidSession
	}
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Begin enters ACTIVE for a freshly authenticated session. Beginning an
// active session for the same subject returns it unchanged; a terminal
// session ID is replaced by a new session.
func (m *Monitor) Begin(sessionID, subjectID string) (Session, error) {
	if !validID(sessionID) || !validID(subjectID) {
		return Session{}, ErrInvalidSession
	}

	now := m.now()

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		existing.mu.Lock()
		if existing.state == StateActive {
			snap := m.snapshot(existing)
			existing.mu.Unlock()
			m.mu.Unlock()
			if snap.SubjectID != subjectID {
				return Session{}, ErrSessionExists
			}
			return snap, nil
		}
		existing.mu.Unlock()
	}

	e := &entry{
		id:        sessionID,
		subjectID: subjectID,
		state:     StateActive,
		createdAt: now,
		lastSeen:  now,
	}
	m.sessions[sessionID] = e
	e.mu.Lock()
	snap := m.snapshot(e)
	e.mu.Unlock()
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	m.recorder.Record(audit.NewEvent(audit.ActionSessionStarted, subjectID).
		WithMeta("session_id", sessionID))

	return snap, nil
}

// TrackActivity records generic activity for sessionID.
func (m *Monitor) TrackActivity(sessionID string) error {
	return m.TrackSignal(sessionID, "")
}

// TrackSignal records activity of the given signal kind. An empty signal is
// generic activity. Activity on a session whose idle deadline has already
// passed expires it instead of reviving it.
func (m *Monitor) TrackSignal(sessionID, signal string) error {
	if signal != "" {
		if _, ok := m.signals[strings.ToLower(strings.TrimSpace(signal))]; !ok {
			return ErrUnknownSignal
		}
	}

	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	now := m.now()

	e.mu.Lock()
	switch e.state {
	case StateExpired:
		e.mu.Unlock()
		return ErrSessionExpired
	case StateEnded:
		e.mu.Unlock()
		return ErrSessionEnded
	}

	if now.Sub(e.lastSeen) >= m.config.IdleTimeout {
		fire := m.expireLocked(e, now)
		e.mu.Unlock()
		fire()
		return ErrSessionExpired
	}

	if now.After(e.lastSeen) {
		e.lastSeen = now
	}
	e.mu.Unlock()
	return nil
}

// StartMonitor starts the idle watcher for sessionID. onTimeout may be nil.
// Calling it on an already monitored session replaces the callback. It fails
// with ErrMonitorStopped once StopAll has begun.
func (m *Monitor) StartMonitor(sessionID string, onTimeout TimeoutFunc) error {
	if !validID(sessionID) {
		return ErrInvalidSession
	}

	// mu is held until the watcher is counted in wg, so StopAll either sees
	// this session or refuses it.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return ErrMonitorStopped
	}
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateExpired:
		return ErrSessionExpired
	case StateEnded:
		return ErrSessionEnded
	}

	e.onTimeout = onTimeout
	e.released = false
	if e.watcher != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	e.watcher = w

	m.wg.Add(1)
	m.watchers.Add(1)
	go m.watch(ctx, e, w)

	return nil
}

func (m *Monitor) watch(ctx context.Context, e *entry, w *watcher) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	finish := func() {
		m.watchers.Add(-1)
		close(w.done)
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return
		case <-ticker.C:
			fire, stop := m.checkIdle(e, w)
			if !stop {
				continue
			}
			finish()
			fire()
			return
		}
	}
}

// checkIdle expires e when its idle deadline has passed. stop reports that
// the watcher should exit; fire runs the timeout side effects and must be
// called outside any lock.
func (m *Monitor) checkIdle(e *entry, w *watcher) (fire func(), stop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.watcher != w {
		return func() {}, true
	}
	if e.state != StateActive {
		e.watcher = nil
		return func() {}, true
	}

	now := m.now()
	if now.Sub(e.lastSeen) < m.config.IdleTimeout {
		return nil, false
	}
	return m.expireLocked(e, now), true
}

// expireLocked moves e to EXPIRED and detaches its watcher. It must be called
// with e.mu held; the returned func records the event and invokes the
// callback and must run after the lock is released.
func (m *Monitor) expireLocked(e *entry, now time.Time) func() {
	e.state = StateExpired
	e.endedAt = now

	if w := e.watcher; w != nil {
		e.watcher = nil
		w.cancel()
	}
	cb := e.onTimeout
	e.onTimeout = nil
	snap := m.snapshot(e)

	return func() {
		metrics.SessionsActive.Dec()
		metrics.SessionTimeouts.Inc()
		m.recorder.Record(audit.NewEvent(audit.ActionSessionTimeout, snap.SubjectID).
			WithMeta("session_id", snap.SessionID).
			WithMeta("last_activity_at", snap.LastActivityAt.UTC().Format(time.RFC3339Nano)))
		logging.Info().
			Str("session_id", logging.MaskSessionID(snap.SessionID)).
			Str("subject_id", snap.SubjectID).
			Msg("Session expired after idle timeout")
		if cb != nil {
			cb(snap)
		}
	}
}

// StopMonitor cancels the watcher for sessionID and waits for it to exit.
// It is idempotent and safe for unknown or terminal sessions.
func (m *Monitor) StopMonitor(sessionID string) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	w := e.watcher
	e.watcher = nil
	e.onTimeout = nil
	e.released = true
	e.mu.Unlock()

	if w != nil {
		w.cancel()
		<-w.done
	}
}

// End terminates sessionID on logout. Ending an already terminal session is
// a no-op.
func (m *Monitor) End(sessionID string) (Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	m.StopMonitor(sessionID)

	e.mu.Lock()
	if e.state != StateActive {
		snap := m.snapshot(e)
		e.mu.Unlock()
		return snap, nil
	}
	e.state = StateEnded
	e.endedAt = m.now()
	snap := m.snapshot(e)
	e.mu.Unlock()

	metrics.SessionsActive.Dec()
	m.recorder.Record(audit.NewEvent(audit.ActionSessionEnded, snap.SubjectID).
		WithMeta("session_id", snap.SessionID))
	return snap, nil
}

// Get returns a snapshot of sessionID.
func (m *Monitor) Get(sessionID string) (Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.snapshot(e), nil
}

// ActiveWatchers returns the number of running watcher goroutines.
func (m *Monitor) ActiveWatchers() int {
	return int(m.watchers.Load())
}

// StopAll cancels every watcher and waits for all of them to exit. Later
// StartMonitor calls fail with ErrMonitorStopped.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	m.stopped = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopMonitor(id)
	}
	m.wg.Wait()
}

// Sweep expires active sessions that were never monitored and whose deadline
// has passed, and forgets terminal sessions older than Retention. Sessions
// released by StopMonitor are never expired here; they are forgotten once
// idle for IdleTimeout plus Retention.
func (m *Monitor) Sweep() (expired, purged int) {
	now := m.now()

	m.mu.Lock()
	var fires []func()
	for id, e := range m.sessions {
		e.mu.Lock()
		switch {
		case e.state == StateActive && e.released:
			if now.Sub(e.lastSeen) >= m.config.IdleTimeout+m.config.Retention {
				delete(m.sessions, id)
				metrics.SessionsActive.Dec()
				purged++
			}
		case e.state == StateActive && e.watcher == nil && now.Sub(e.lastSeen) >= m.config.IdleTimeout:
			fires = append(fires, m.expireLocked(e, now))
			expired++
		case e.state != StateActive && now.Sub(e.endedAt) >= m.config.Retention:
			delete(m.sessions, id)
			purged++
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	for _, fire := range fires {
		fire()
	}
	return expired, purged
}

// Serve sweeps at PollInterval until ctx is canceled, then stops every
// watcher. It implements suture.Service.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.StopAll()
			logging.Info().Msg("Session monitor stopped all watchers")
			return ctx.Err()
		case <-ticker.C:
			if expired, purged := m.Sweep(); expired+purged > 0 {
				logging.Debug().Int("expired", expired).Int("purged", purged).Msg("Session sweep")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Monitor) String() string {
	return "session-monitor"
}
