package interfaces

import (
	"context"

	"teams_bridge/internal/entities"
)

// Messenger delivers replies into a conversation.
type Messenger interface {
	// SendMessage posts a new message and returns its activity id.
	SendMessage(ctx context.Context, conv entities.ConversationRef, reply entities.Reply) (string, error)
	// ReplaceMessage overwrites a message the bot sent earlier.
	ReplaceMessage(ctx context.Context, conv entities.ConversationRef, activityID string, reply entities.Reply) error
}

// TenantLookup maps an organization id to an internal tenant id. An empty
// id with a nil error means the organization is not mapped.
type TenantLookup interface {
	Lookup(ctx context.Context, orgID string) (string, error)
}

type ClaimMinter interface {
	Mint(ctx context.Context, orgID string) (entities.ClaimResult, error)
}

type KnowledgeBase interface {
	Query(ctx context.Context, tenantID, question string) (entities.Answer, error)
}

type FeedbackSink interface {
	SubmitFeedback(ctx context.Context, fb entities.Feedback) error
}

// TurnRecorder persists one row per handled turn.
type TurnRecorder interface {
	Record(ctx context.Context, rec entities.TurnRecord) error
}
