package events

import (
	"context"
	"errors"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishTraffic(context.Background(), NewTrafficEvent(DirectionCall, "Auth", "login", OutcomeSent))
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *TrafficEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *TrafficEvent) error {
		captured = event
		return nil
	})

	event := NewTrafficEvent(DirectionReply, "Promotion", "showPromotion", OutcomeQueued).WithHandle(5)
	event.Stage = "open"

	if err := pub.PublishTraffic(context.Background(), event); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}

	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.Module != "Promotion" {
		t.Errorf("events:publisher_test - expected module Promotion, got %s", captured.Module)
	}
	if captured.Handle == nil || *captured.Handle != 5 {
		t.Errorf("events:publisher_test - expected handle 5, got %v", captured.Handle)
	}
	if captured.ID == "" || captured.Timestamp == "" {
		t.Errorf("events:publisher_test - expected id and timestamp to be set")
	}
}

func TestMultiPublisher_TriesAll(t *testing.T) {
	calls := 0
	failing := NewCallbackPublisher(func(context.Context, *TrafficEvent) error {
		calls++
		return errors.New("down")
	})
	counting := NewCallbackPublisher(func(context.Context, *TrafficEvent) error {
		calls++
		return nil
	})

	multi := MultiPublisher{failing, nil, counting}
	err := multi.PublishTraffic(context.Background(), NewTrafficEvent(DirectionCall, "Push", "getRemotePush", OutcomeSent))
	if err == nil {
		t.Errorf("events:publisher_test - expected joined error")
	}
	if calls != 2 {
		t.Errorf("events:publisher_test - expected 2 calls, got %d", calls)
	}
}

type memoryStore struct {
	events []*TrafficEvent
	err    error
}

func (m *memoryStore) InsertTraffic(ctx context.Context, event *TrafficEvent) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected deadline")
	}
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestJournalPublisher(t *testing.T) {
	store := &memoryStore{}
	pub := NewJournalPublisher(store, 0)

	if err := pub.PublishTraffic(context.Background(), NewTrafficEvent(DirectionCall, "IAPV4", "purchase", OutcomeSent)); err != nil {
		t.Fatalf("events:publisher_test - PublishTraffic failed: %v", err)
	}
	if len(store.events) != 1 {
		t.Errorf("events:publisher_test - expected 1 stored event, got %d", len(store.events))
	}

	store.err = errors.New("insert failed")
	err := pub.PublishTraffic(context.Background(), NewTrafficEvent(DirectionCall, "IAPV4", "restore", OutcomeSent))
	if !errors.Is(err, store.err) {
		t.Errorf("events:publisher_test - expected wrapped store error, got %v", err)
	}
}
