// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/campaignguard/internal/audit"
	"github.com/tomtom215/campaignguard/internal/storage"
)

var evalNow = time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)

// captureBroadcaster records broadcast message types.
type captureBroadcaster struct {
	mu    sync.Mutex
	types []string
}

func (b *captureBroadcaster) BroadcastJSON(messageType string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, messageType)
}

func (b *captureBroadcaster) count(messageType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.types {
		if t == messageType {
			n++
		}
	}
	return n
}

// captureRecorder keeps recorded audit events.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(e *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
}

func (r *captureRecorder) count(action audit.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func alertStoreFactories(t *testing.T) map[string]func() AlertStore {
	t.Helper()
	return map[string]func() AlertStore{
		"memory": func() AlertStore { return NewMemoryStore() },
		"badger": func() AlertStore {
			db, err := storage.OpenInMemory()
			if err != nil {
				t.Fatalf("OpenInMemory: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			return NewBadgerStore(db)
		},
	}
}

func newTestEngine(t *testing.T, store AlertStore, config Config) (*Engine, *captureRecorder, *captureBroadcaster) {
	t.Helper()
	rec := &captureRecorder{}
	engine, err := NewEngine(audit.NewMemoryStore(0), store, rec, config)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	b := &captureBroadcaster{}
	engine.SetBroadcaster(b)
	engine.now = func() time.Time { return evalNow }
	return engine, rec, b
}

// ev builds an event offset minutes before evalNow.
func ev(id string, action audit.Action, subject string, minutesAgo int) audit.Event {
	return audit.Event{
		ID:        id,
		Action:    action,
		SubjectID: subject,
		CreatedAt: evalNow.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func failures(subject string, n, fromMinutesAgo int) []audit.Event {
	out := make([]audit.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ev(fmt.Sprintf("%s-f%d", subject, i), audit.ActionLoginFailed, subject, fromMinutesAgo-i))
	}
	return out
}

func TestEvaluateFailedLoginBurstIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, factory := range alertStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			engine, rec, b := newTestEngine(t, store, DefaultConfig())
			ctx := context.Background()

			window := failures("X", 5, 60)
			window = append(window, ev("y-ok", audit.ActionLoginSuccess, "Y", 30))

			alerts, err := engine.Evaluate(ctx, window)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(alerts) != 1 {
				t.Fatalf("got %d alerts, want 1: %+v", len(alerts), alerts)
			}
			a := alerts[0]
			if a.Kind != KindFailedLoginBurst || a.SubjectID != "X" || a.Severity != SeverityHigh {
				t.Errorf("alert = %+v", a)
			}
			if len(a.Evidence) != 5 || a.Date != "2026-05-12" {
				t.Errorf("evidence = %v, date = %s", a.Evidence, a.Date)
			}

			again, err := engine.Evaluate(ctx, window)
			if err != nil || len(again) != 0 {
				t.Fatalf("re-run = %+v, %v; want no new alerts", again, err)
			}

			all, _ := engine.List(ctx, AlertFilter{})
			if len(all) != 1 {
				t.Errorf("store holds %d alerts, want 1", len(all))
			}
			if rec.count(audit.ActionAlertRaised) != 1 || b.count(MessageAlertRaised) != 1 {
				t.Errorf("raised events = %d, broadcasts = %d", rec.count(audit.ActionAlertRaised), b.count(MessageAlertRaised))
			}
		})
	}
}

func TestBurstBelowThresholdRaisesNothing(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	alerts, err := engine.Evaluate(context.Background(), failures("X", 2, 10))
	if err != nil || len(alerts) != 0 {
		t.Fatalf("Evaluate = %+v, %v", alerts, err)
	}
}

func TestBurstEscalatesOpenAlert(t *testing.T) {
	t.Parallel()

	engine, _, b := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	window := failures("X", 3, 60)
	first, _ := engine.Evaluate(ctx, window)
	if len(first) != 1 || first[0].Severity != SeverityMedium {
		t.Fatalf("first pass = %+v, want one medium alert", first)
	}

	// A fourth failure adds evidence without changing severity.
	window = failures("X", 4, 60)
	if got, _ := engine.Evaluate(ctx, window); len(got) != 0 {
		t.Fatalf("evidence-only change returned %+v", got)
	}
	stored, _ := engine.Get(ctx, first[0].ID)
	if len(stored.Evidence) != 4 {
		t.Errorf("evidence = %d, want 4", len(stored.Evidence))
	}

	window = failures("X", 5, 60)
	second, _ := engine.Evaluate(ctx, window)
	if len(second) != 1 {
		t.Fatalf("escalation pass = %+v", second)
	}
	if second[0].ID != first[0].ID || second[0].Severity != SeverityHigh || len(second[0].Evidence) != 5 {
		t.Errorf("escalated alert = %+v", second[0])
	}
	if b.count(MessageAlertEscalated) != 1 {
		t.Errorf("escalation broadcasts = %d", b.count(MessageAlertEscalated))
	}

	// A smaller window never lowers severity.
	if got, _ := engine.Evaluate(ctx, failures("X", 3, 60)); len(got) != 0 {
		t.Errorf("shrinking window changed alerts: %+v", got)
	}
	stored, _ = engine.Get(ctx, first[0].ID)
	if stored.Severity != SeverityHigh {
		t.Errorf("severity dropped to %s", stored.Severity)
	}
}

func TestOutOfOrderAndDuplicateEvents(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, NewMemoryStore(), DefaultConfig())

	f := failures("X", 3, 30)
	window := []audit.Event{f[2], f[0], f[2], f[1], f[0]}

	alerts, err := engine.Evaluate(context.Background(), window)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != SeverityMedium || len(alerts[0].Evidence) != 3 {
		t.Fatalf("alerts = %+v, want one medium alert with 3 events", alerts)
	}
	if window[0].ID != f[2].ID {
		t.Error("Evaluate reordered the caller's window")
	}
}

func TestMultiDeviceActivity(t *testing.T) {
	t.Parallel()

	withAgent := func(id, subject, agent string, minutesAgo int) audit.Event {
		e := ev(id, audit.ActionLoginSuccess, subject, minutesAgo)
		e.UserAgent = agent
		return e
	}

	engine, _, _ := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	window := []audit.Event{
		withAgent("a1", "many", "agent-1", 50),
		withAgent("a2", "many", "agent-2", 40),
		withAgent("a3", "many", "agent-3", 30),
		withAgent("a4", "many", "agent-1", 25),
		withAgent("b1", "three", "agent-1", 50),
		withAgent("b2", "three", "agent-2", 40),
		withAgent("b3", "three", "agent-3", 30),
	}
	if got, _ := engine.Evaluate(ctx, window); len(got) != 0 {
		t.Fatalf("three agents raised %+v", got)
	}

	window = append(window, withAgent("a5", "many", "agent-4", 20))
	alerts, err := engine.Evaluate(ctx, window)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Kind != KindMultiDevice || a.SubjectID != "many" || a.Severity != SeverityHigh {
		t.Errorf("alert = %+v", a)
	}
	if len(a.Evidence) != 4 {
		t.Errorf("evidence = %v, want first event per agent", a.Evidence)
	}
}

func TestMultiDeviceFamilyMode(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.UserAgentMode = UserAgentFamily
	engine, _, _ := newTestEngine(t, NewMemoryStore(), config)

	var window []audit.Event
	for i, version := range []string{"118.0.0.0", "119.0.0.0", "120.0.0.0", "121.0.0.0", "122.0.0.0"} {
		e := ev(fmt.Sprintf("c%d", i), audit.ActionLoginSuccess, "updater", 60-i)
		e.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + version + " Safari/537.36"
		window = append(window, e)
	}

	alerts, err := engine.Evaluate(context.Background(), window)
	if err != nil || len(alerts) != 0 {
		t.Fatalf("browser updates counted as devices: %+v, %v", alerts, err)
	}
}

func TestNewEngineRejectsUnknownAgentMode(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.UserAgentMode = "fuzzy"
	if _, err := NewEngine(audit.NewMemoryStore(0), nil, nil, config); err == nil {
		t.Fatal("expected error for unknown user agent mode")
	}
}

func TestSessionAnomaly(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, NewMemoryStore(), DefaultConfig())
	ctx := context.Background()

	window := []audit.Event{
		// Undecided: timed out four minutes ago.
		ev("t-recent", audit.ActionSessionTimeout, "recent", 4),
		// Cleared by a login two minutes after the timeout.
		ev("t-back", audit.ActionSessionTimeout, "back", 30),
		ev("s-back", audit.ActionLoginSuccess, "back", 28),
		// Login came too late.
		ev("t-late", audit.ActionSessionTimeout, "late", 30),
		ev("s-late", audit.ActionLoginSuccess, "late", 20),
		// Login before the timeout does not count.
		ev("s-gone", audit.ActionLoginSuccess, "gone", 40),
		ev("t-gone", audit.ActionSessionTimeout, "gone", 30),
	}

	alerts, err := engine.Evaluate(ctx, window)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got := map[string]Severity{}
	for _, a := range alerts {
		if a.Kind != KindSessionAnomaly {
			t.Errorf("unexpected kind %s", a.Kind)
		}
		got[a.SubjectID] = a.Severity
	}
	if len(got) != 2 || got["late"] != SeverityLow || got["gone"] != SeverityLow {
		t.Errorf("session anomalies = %v, want late and gone at low", got)
	}

	// Once the grace period passes the recent timeout is decided.
	engine.now = func() time.Time { return evalNow.Add(2 * time.Minute) }
	alerts, _ = engine.Evaluate(ctx, window)
	if len(alerts) != 1 || alerts[0].SubjectID != "recent" {
		t.Errorf("after grace = %+v", alerts)
	}
}

func TestResolveIsIrreversible(t *testing.T) {
	t.Parallel()

	for name, factory := range alertStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			engine, rec, b := newTestEngine(t, factory(), DefaultConfig())
			ctx := context.Background()

			window := failures("X", 3, 60)
			alerts, _ := engine.Evaluate(ctx, window)
			if len(alerts) != 1 {
				t.Fatalf("setup raised %d alerts", len(alerts))
			}
			id := alerts[0].ID

			resolved, err := engine.Resolve(ctx, id, "ops@example.org", "phishing test, confirmed with volunteer")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !resolved.Resolved || resolved.ResolvedAt == nil || resolved.ResolvedBy != "ops@example.org" {
				t.Errorf("resolved alert = %+v", resolved)
			}
			if resolved.ResolutionNote != "phishing test, confirmed with volunteer" {
				t.Errorf("ResolutionNote = %q", resolved.ResolutionNote)
			}

			again, err := engine.Resolve(ctx, id, "someone-else", "")
			if err != nil {
				t.Fatalf("second Resolve: %v", err)
			}
			if again.ResolvedBy != "ops@example.org" || !again.ResolvedAt.Equal(*resolved.ResolvedAt) || again.ResolutionNote != resolved.ResolutionNote {
				t.Errorf("second resolve changed the alert: %+v", again)
			}
			if rec.count(audit.ActionAlertResolved) != 1 || b.count(MessageAlertResolved) != 1 {
				t.Error("second resolve emitted events")
			}

			// The same evidence is not raised again.
			if got, _ := engine.Evaluate(ctx, window); len(got) != 0 {
				t.Fatalf("resolved key re-raised: %+v", got)
			}
			stored, _ := engine.Get(ctx, id)
			if !stored.Resolved {
				t.Fatal("evaluation reopened a resolved alert")
			}

			// New evidence raises a fresh alert for the same key.
			window = failures("X", 4, 60)
			fresh, _ := engine.Evaluate(ctx, window)
			if len(fresh) != 1 || fresh[0].ID == id {
				t.Fatalf("new evidence = %+v, want a new alert", fresh)
			}

			open := false
			list, _ := engine.List(ctx, AlertFilter{Resolved: &open})
			if len(list) != 1 || list[0].ID != fresh[0].ID {
				t.Errorf("open alerts = %+v", list)
			}
		})
	}
}

func TestResolveUnknownAlert(t *testing.T) {
	t.Parallel()

	for name, factory := range alertStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			engine, _, _ := newTestEngine(t, factory(), DefaultConfig())
			if _, err := engine.Resolve(context.Background(), "missing", "ops", ""); !errors.Is(err, ErrAlertNotFound) {
				t.Errorf("Resolve(missing) = %v, want ErrAlertNotFound", err)
			}
		})
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	t.Parallel()

	for name, factory := range alertStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			engine, _, _ := newTestEngine(t, factory(), DefaultConfig())
			ctx := context.Background()

			_, _ = engine.Evaluate(ctx, failures("A", 3, 60))
			engine.now = func() time.Time { return evalNow.Add(time.Minute) }
			_, _ = engine.Evaluate(ctx, failures("B", 5, 60))

			all, err := engine.List(ctx, AlertFilter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 2 || all[0].SubjectID != "B" {
				t.Fatalf("List = %+v, want B first", all)
			}

			bySubject, _ := engine.List(ctx, AlertFilter{SubjectID: "A"})
			if len(bySubject) != 1 || bySubject[0].Severity != SeverityMedium {
				t.Errorf("subject filter = %+v", bySubject)
			}
			limited, _ := engine.List(ctx, AlertFilter{Limit: 1})
			if len(limited) != 1 {
				t.Errorf("limit = %d alerts", len(limited))
			}
			byKind, _ := engine.List(ctx, AlertFilter{Kind: KindMultiDevice})
			if len(byKind) != 0 {
				t.Errorf("kind filter = %+v", byKind)
			}
		})
	}
}

// failingStore fails every read so Evaluate must surface the error.
type failingStore struct{ *MemoryStore }

func (failingStore) ByKey(context.Context, NaturalKey) ([]Alert, error) {
	return nil, errors.New("disk on fire")
}

func TestEvaluateReportsStoreErrors(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, failingStore{NewMemoryStore()}, DefaultConfig())
	alerts, err := engine.Evaluate(context.Background(), failures("X", 5, 30))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestRunOnceUsesConfiguredWindow(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemoryStore(0)
	ctx := context.Background()
	// Two failures are older than the window and do not count.
	for i, minutesAgo := range []int{26 * 60, 25 * 60, 30, 20, 10} {
		e := ev(fmt.Sprintf("f%d", i), audit.ActionLoginFailed, "X", minutesAgo)
		if err := sink.Append(ctx, &e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	engine, err := NewEngine(sink, NewMemoryStore(), nil, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.now = func() time.Time { return evalNow }

	alerts := engine.RunOnce(ctx)
	if len(alerts) != 1 || alerts[0].Severity != SeverityMedium || len(alerts[0].Evidence) != 3 {
		t.Fatalf("RunOnce = %+v, want one medium alert over 3 events", alerts)
	}
}

func TestTriggersEvaluationIgnoresAlertEvents(t *testing.T) {
	t.Parallel()

	for action, want := range map[audit.Action]bool{
		audit.ActionLoginFailed:    true,
		audit.ActionSessionTimeout: true,
		audit.ActionAlertRaised:    false,
		audit.ActionAlertResolved:  false,
	} {
		msg := message.NewMessage("id", nil)
		msg.Metadata.Set(audit.MetadataAction, string(action))
		if got := triggersEvaluation(msg); got != want {
			t.Errorf("triggersEvaluation(%s) = %v, want %v", action, got, want)
		}
	}
}
