// Package events defines traffic events emitted by the bridge and the
// publishers that carry them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a traffic event relative to the client.
type Direction string

const (
	DirectionCall  Direction = "call"
	DirectionReply Direction = "reply"
)

// Reply outcomes recorded in Outcome.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeQueued    = "queued"
	OutcomeDropped   = "dropped"
	OutcomeMalformed = "malformed"
)

// TrafficEvent describes one envelope crossing the native boundary.
type TrafficEvent struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Target    string    `json:"target,omitempty"`
	Platform  string    `json:"platform,omitempty"`
	Module    string    `json:"module"`
	Operation string    `json:"operation"`
	Handle    *int64    `json:"handle,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Outcome   string    `json:"outcome"`
	ErrorCode *int      `json:"errorCode,omitempty"`
	Size      int       `json:"size"`
	Timestamp string    `json:"timestamp"`
}

// NewTrafficEvent returns an event with a fresh ID and the current timestamp.
func NewTrafficEvent(dir Direction, module, operation, outcome string) *TrafficEvent {
	return &TrafficEvent{
		ID:        uuid.NewString(),
		Direction: dir,
		Module:    module,
		Operation: operation,
		Outcome:   outcome,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// WithHandle sets the correlation handle.
func (e *TrafficEvent) WithHandle(h int64) *TrafficEvent {
	e.Handle = &h
	return e
}
