package entities

// EventKind classifies an inbound activity.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventAction  EventKind = "action"
	EventOther   EventKind = "other"
)

// Action names carried by card submit buttons.
const (
	ActionFeedback = "feedback"

	FeedbackUp   = "up"
	FeedbackDown = "down"
)

// ConversationRef addresses the conversation a reply goes to.
type ConversationRef struct {
	ServiceURL     string
	ConversationID string
	ActivityID     string // inbound activity, used as replyToId
	BotID          string
	BotName        string
}

// ActionPayload is the data submitted by a card action button.
type ActionPayload struct {
	Action     string `json:"action"`
	Feedback   string `json:"feedback,omitempty"`
	FeedbackID string `json:"qa_log_id,omitempty"`
}

// InboundEvent is one turn's view of an inbound activity. It is built once
// from the connector envelope and never mutated.
type InboundEvent struct {
	Kind              EventKind
	Text              string
	SenderID          string
	SenderAADObjectID string
	OrganizationID    string // Azure AD tenant of the sender's organization
	Conversation      ConversationRef
	Action            *ActionPayload
}

// IsFeedback reports whether the event is a click on a feedback button.
func (e InboundEvent) IsFeedback() bool {
	return e.Action != nil && e.Action.Action == ActionFeedback
}

// UserID prefers the AAD object id over the channel account id.
func (e InboundEvent) UserID() string {
	if e.SenderAADObjectID != "" {
		return e.SenderAADObjectID
	}
	return e.SenderID
}

// Reply is a single outbound message: plain text, a card, or both.
type Reply struct {
	Text string
	Card *Card
}
