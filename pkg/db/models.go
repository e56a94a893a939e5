package db

import "time"

// TrafficRecord is a row in the traffic_journal table.
type TrafficRecord struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Target    *string   `json:"target,omitempty"`
	Platform  *string   `json:"platform,omitempty"`
	Module    string    `json:"module"`
	Operation string    `json:"operation"`
	Handle    *int64    `json:"handle,omitempty"`
	Kind      *string   `json:"kind,omitempty"`
	Stage     *string   `json:"stage,omitempty"`
	Outcome   string    `json:"outcome"`
	ErrorCode *int      `json:"error_code,omitempty"`
	Size      int       `json:"size"`
	Recorded  time.Time `json:"recorded"`
}

// TrafficFilter narrows ListTraffic. Zero fields are ignored.
type TrafficFilter struct {
	Module    string
	Operation string
	Handle    *int64
	Outcome   string
	Since     time.Time
	Limit     int
}

// OutcomeCount is one row of CountByOutcome.
type OutcomeCount struct {
	Module  string `json:"module"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}
