package entities

import "time"

// Source is a document cited by an answer.
type Source struct {
	Title     string
	URL       string
	Platform  string
	UpdatedAt *time.Time
}

// Answer is the knowledge-query result for one question. It is rendered
// and discarded within the turn.
type Answer struct {
	Text       string
	Sources    []Source
	FeedbackID string
}

// Feedback is a thumbs-up/down vote on an answer.
type Feedback struct {
	FeedbackID string
	Value      string
	UserID     string
}

// ClaimStatus tags the variant held by a ClaimResult.
type ClaimStatus int

const (
	ClaimRejected ClaimStatus = iota
	ClaimSucceeded
	ClaimAlreadyMapped
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimSucceeded:
		return "succeeded"
	case ClaimAlreadyMapped:
		return "already_mapped"
	default:
		return "rejected"
	}
}

// ClaimResult is the outcome of a claim-token mint request.
type ClaimResult struct {
	Status    ClaimStatus
	ClaimURL  string // set for ClaimSucceeded
	ErrorCode string // raw error code for ClaimRejected, may be empty
}
