// Package events carries reservation intents to notification and calendar
// consumers. Delivery is best effort: nothing in the reservation path waits
// on it or fails because of it.
package events

import (
	"context"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
	Close() error
}

// Emitter is what services hold. It must not block.
type Emitter interface {
	Emit(e domain.Event)
}

// LogPublisher writes intents to the log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e domain.Event) error {
	logger.InfoContext(ctx, "reservation intent",
		"type", e.Type,
		"event_id", e.ID,
		"reservation_id", e.ReservationID,
		"resource_id", e.ResourceID,
	)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Discard drops every intent.
type Discard struct{}

func (Discard) Emit(domain.Event) {}
