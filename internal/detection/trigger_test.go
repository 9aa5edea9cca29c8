// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/campaignguard/internal/audit"
)

// signalingSubscriber closes subscribed once Subscribe has returned.
type signalingSubscriber struct {
	message.Subscriber
	subscribed chan struct{}
}

func (s *signalingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := s.Subscriber.Subscribe(ctx, topic)
	close(s.subscribed)
	return ch, err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunWithContextEvaluatesOnPublishedEvents(t *testing.T) {
	t.Parallel()

	pubsub := audit.NewGoChannel(64)
	defer pubsub.Close()

	sink := audit.NewPublishingSink(audit.NewMemoryStore(0), pubsub)
	store := NewMemoryStore()

	config := DefaultConfig()
	config.PollInterval = time.Hour
	config.TriggerInterval = time.Millisecond
	engine, err := NewEngine(sink, store, nil, config)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	sub := &signalingSubscriber{Subscriber: pubsub, subscribed: make(chan struct{})}
	engine.SetSubscriber(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.RunWithContext(ctx) }()

	select {
	case <-sub.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never subscribed")
	}

	for i := 0; i < 5; i++ {
		if err := sink.Append(context.Background(), audit.NewEvent(audit.ActionLoginFailed, "volunteer-9")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	waitFor(t, func() bool {
		alerts, _ := store.List(context.Background(), AlertFilter{SubjectID: "volunteer-9"})
		return len(alerts) == 1 && alerts[0].Severity == SeverityHigh && len(alerts[0].Evidence) == 5
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestRunWithContextWithoutSubscriberPolls(t *testing.T) {
	t.Parallel()

	sink := audit.NewMemoryStore(0)
	for i := 0; i < 3; i++ {
		_ = sink.Append(context.Background(), audit.NewEvent(audit.ActionLoginFailed, "canvasser"))
	}

	store := NewMemoryStore()
	config := DefaultConfig()
	config.PollInterval = 10 * time.Millisecond
	engine, err := NewEngine(sink, store, nil, config)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.RunWithContext(ctx) }()

	waitFor(t, func() bool {
		alerts, _ := store.List(context.Background(), AlertFilter{})
		return len(alerts) == 1
	})
}
