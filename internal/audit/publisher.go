// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package audit

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/campaignguard/internal/logging"
)

// TopicEvents carries every stored audit event as JSON.
const TopicEvents = "audit.events"

// Metadata keys set on published messages.
const (
	MetadataAction  = "action"
	MetadataSubject = "subject_id"
)

// PublishingSink stores events in an underlying Sink and then publishes them
// on TopicEvents. Publishing failures are logged and never fail the append.
type PublishingSink struct {
	sink      Sink
	publisher message.Publisher
}

// NewPublishingSink wraps sink. A nil publisher disables fan-out.
func NewPublishingSink(sink Sink, publisher message.Publisher) *PublishingSink {
	return &PublishingSink{sink: sink, publisher: publisher}
}

// NewGoChannel creates the in-process pub/sub used for audit fan-out.
func NewGoChannel(buffer int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: buffer},
		logging.NewWatermillLogger("audit-pubsub"),
	)
}

// Append stores event and publishes it.
func (s *PublishingSink) Append(ctx context.Context, event *Event) error {
	if err := s.sink.Append(ctx, event); err != nil {
		return err
	}
	if s.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID).Msg("Failed to encode audit event for publish")
		return nil
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(MetadataAction, string(event.Action))
	msg.Metadata.Set(MetadataSubject, event.SubjectID)

	if err := s.publisher.Publish(TopicEvents, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID).Msg("Failed to publish audit event")
	}
	return nil
}

// Query reads from the underlying sink.
func (s *PublishingSink) Query(ctx context.Context, q Query) ([]Event, error) {
	return s.sink.Query(ctx, q)
}

// DecodeMessage decodes a message published on TopicEvents.
func DecodeMessage(msg *message.Message) (*Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode audit message %s: %w", msg.UUID, err)
	}
	return &event, nil
}
