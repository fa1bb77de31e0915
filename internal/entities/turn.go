package entities

import "time"

// TurnRecord summarizes one handled turn for the turn log.
type TurnRecord struct {
	RequestID      string
	OrganizationID string
	ConversationID string
	Kind           EventKind
	Outcome        string
	Duration       time.Duration
	CreatedAt      time.Time
}
