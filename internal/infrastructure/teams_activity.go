package infrastructure

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"teams_bridge/internal/entities"
)

const ActivityTypeMessage = "message"

// Activity is the Bot Framework activity envelope, reduced to the fields the
// bridge reads or writes.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Text         string               `json:"text,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Value        json.RawMessage      `json:"value,omitempty"`
	ChannelData  *ChannelData         `json:"channelData,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
}

type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

type ConversationAccount struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
}

type ChannelData struct {
	Tenant *TenantInfo `json:"tenant,omitempty"`
}

type TenantInfo struct {
	ID string `json:"id"`
}

type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content,omitempty"`
}

var mentionTag = regexp.MustCompile(`(?is)<at>.*?</at>`)

// CleanMentionText removes <at>...</at> mention markup and collapses the
// whitespace left behind.
func CleanMentionText(text string) string {
	text = mentionTag.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// ToInboundEvent converts an activity into the bridge's event view. An
// activity carrying a submit value is an action; any other message activity
// is a message.
func ToInboundEvent(a Activity) entities.InboundEvent {
	ev := entities.InboundEvent{
		Kind: entities.EventOther,
		Text: strings.TrimSpace(CleanMentionText(a.Text)),
		Conversation: entities.ConversationRef{
			ServiceURL: strings.TrimSpace(a.ServiceURL),
			ActivityID: strings.TrimSpace(a.ID),
		},
	}
	if a.From != nil {
		ev.SenderID = strings.TrimSpace(a.From.ID)
		ev.SenderAADObjectID = strings.TrimSpace(a.From.AADObjectID)
	}
	if a.Recipient != nil {
		ev.Conversation.BotID = strings.TrimSpace(a.Recipient.ID)
		ev.Conversation.BotName = strings.TrimSpace(a.Recipient.Name)
	}
	if a.Conversation != nil {
		ev.Conversation.ConversationID = strings.TrimSpace(a.Conversation.ID)
	}
	if a.ChannelData != nil && a.ChannelData.Tenant != nil {
		ev.OrganizationID = strings.TrimSpace(a.ChannelData.Tenant.ID)
	}
	if ev.OrganizationID == "" && a.Conversation != nil {
		ev.OrganizationID = strings.TrimSpace(a.Conversation.TenantID)
	}

	switch {
	case hasValue(a.Value):
		ev.Kind = entities.EventAction
		var payload entities.ActionPayload
		if err := json.Unmarshal(a.Value, &payload); err == nil {
			ev.Action = &payload
		}
	case a.Type == ActivityTypeMessage:
		ev.Kind = entities.EventMessage
	}
	return ev
}

func hasValue(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// replyActivity builds the outbound activity for a reply.
func replyActivity(conv entities.ConversationRef, reply entities.Reply) Activity {
	a := Activity{
		Type:         ActivityTypeMessage,
		Text:         reply.Text,
		Conversation: &ConversationAccount{ID: conv.ConversationID},
		ReplyToID:    conv.ActivityID,
	}
	if conv.BotID != "" {
		a.From = &ChannelAccount{ID: conv.BotID, Name: conv.BotName}
	}
	if reply.Card != nil {
		a.Attachments = []Attachment{{ContentType: entities.AdaptiveCardContentType, Content: reply.Card}}
	}
	return a
}
