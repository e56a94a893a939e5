package events

import (
	"context"
	"fmt"
	"time"
)

const journalPublisherLogPrefix = "events:journal_publisher"

// TrafficStore persists traffic events.
type TrafficStore interface {
	InsertTraffic(ctx context.Context, event *TrafficEvent) error
}

// JournalPublisher writes traffic events to a TrafficStore.
type JournalPublisher struct {
	store   TrafficStore
	timeout time.Duration
}

// NewJournalPublisher creates a JournalPublisher. A non-positive timeout means 2s.
func NewJournalPublisher(store TrafficStore, timeout time.Duration) *JournalPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &JournalPublisher{store: store, timeout: timeout}
}

// PublishTraffic inserts the event.
func (p *JournalPublisher) PublishTraffic(ctx context.Context, event *TrafficEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.InsertTraffic(ctx, event); err != nil {
		return fmt.Errorf("%s - failed to journal %s.%s: %w", journalPublisherLogPrefix, event.Module, event.Operation, err)
	}
	return nil
}
