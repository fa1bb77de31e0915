package usecases

import (
	"context"
	"strings"
	"time"

	"teams_bridge/internal/config"
	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

const (
	adaptiveCardSchema  = "http://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveCardVersion = "1.4"
)

var platformLabels = map[string]string{
	"notion":       "Notion",
	"google_drive": "Google Drive",
	"confluence":   "Confluence",
	"sharepoint":   "SharePoint",
	"onedrive":     "OneDrive",
	"slack":        "Slack",
	"teams":        "Microsoft Teams",
	"dropbox":      "Dropbox",
	"github":       "GitHub",
	"jira":         "Jira",
	"gmail":        "Gmail",
	"website":      "Website",
	"upload":       "Upload",
}

// PlatformLabel returns the display name of a source platform, or the raw
// key when it is not known.
func PlatformLabel(key string) string {
	if label, ok := platformLabels[strings.ToLower(strings.TrimSpace(key))]; ok {
		return label
	}
	return key
}

// ResponseRenderer turns answers into replies and delivers them, replacing
// the placeholder when one was sent.
type ResponseRenderer struct {
	format          string
	placeholderMode string
	now             func() time.Time
	out             replier
}

type RendererConfig struct {
	AnswerFormat    string
	PlaceholderMode string
	Messenger       interfaces.Messenger
	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  logging.Logger
	Metrics *monitoring.Metrics
}

func NewResponseRenderer(cfg RendererConfig) *ResponseRenderer {
	r := &ResponseRenderer{
		format:          cfg.AnswerFormat,
		placeholderMode: cfg.PlaceholderMode,
		now:             cfg.Now,
		out:             replier{messenger: cfg.Messenger, logger: cfg.Logger, metrics: cfg.Metrics},
	}
	if r.format == "" {
		r.format = config.AnswerFormatCard
	}
	if r.placeholderMode == "" {
		r.placeholderMode = config.PlaceholderReplace
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.out.logger == nil {
		r.out.logger = logging.NewDiscardLogger()
	}
	return r
}

// Render builds the reply for an answer. It has no side effects.
func (r *ResponseRenderer) Render(a entities.Answer) entities.Reply {
	if r.format == config.AnswerFormatPlain {
		return entities.Reply{Text: a.Text}
	}
	return entities.Reply{Card: r.Card(a)}
}

// Card renders an answer as an Adaptive Card.
func (r *ResponseRenderer) Card(a entities.Answer) *entities.Card {
	now := r.now()
	card := &entities.Card{
		Type:    "AdaptiveCard",
		Schema:  adaptiveCardSchema,
		Version: adaptiveCardVersion,
		Body:    []entities.CardElement{{Type: "TextBlock", Text: a.Text, Wrap: true}},
	}

	if len(a.Sources) > 0 {
		card.Body = append(card.Body, entities.CardElement{
			Type:    "TextBlock",
			Text:    "Sources",
			Weight:  "Bolder",
			Spacing: "Medium",
			Wrap:    true,
		})
		for _, s := range a.Sources {
			card.Body = append(card.Body, entities.CardElement{
				Type:    "TextBlock",
				Text:    SourceLine(s, now),
				Wrap:    true,
				Spacing: "Small",
			})
		}
	}

	if a.FeedbackID != "" {
		card.Actions = []entities.CardAction{
			feedbackAction("👍 Helpful", entities.FeedbackUp, a.FeedbackID),
			feedbackAction("👎 Not helpful", entities.FeedbackDown, a.FeedbackID),
		}
	}
	return card
}

func feedbackAction(title, value, feedbackID string) entities.CardAction {
	return entities.CardAction{
		Type:  "Action.Submit",
		Title: title,
		Data: &entities.ActionPayload{
			Action:     entities.ActionFeedback,
			Feedback:   value,
			FeedbackID: feedbackID,
		},
	}
}

// SourceLine formats one citation: "• <title> — <platform> (Updated <when>)".
// The title is a markdown link when the source has a URL.
func SourceLine(s entities.Source, now time.Time) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Untitled"
	}
	if s.URL != "" {
		title = "[" + title + "](" + s.URL + ")"
	}

	var b strings.Builder
	b.WriteString("• ")
	b.WriteString(title)
	if label := PlatformLabel(s.Platform); label != "" {
		b.WriteString(" — ")
		b.WriteString(label)
	}
	b.WriteString(" (Updated ")
	b.WriteString(RelativeTime(s.UpdatedAt, now))
	b.WriteString(")")
	return b.String()
}

// SendPlaceholder posts the working message unless placeholders are off.
// It returns the placeholder's activity id, or "" when none was sent.
func (r *ResponseRenderer) SendPlaceholder(ctx context.Context, conv entities.ConversationRef) string {
	if r.placeholderMode == config.PlaceholderOff {
		return ""
	}
	id, _ := r.out.send(ctx, conv, entities.Reply{Text: MsgWorking})
	return id
}

func (r *ResponseRenderer) DeliverAnswer(ctx context.Context, conv entities.ConversationRef, placeholderID string, a entities.Answer) bool {
	return r.deliver(ctx, conv, placeholderID, r.Render(a))
}

func (r *ResponseRenderer) DeliverFailure(ctx context.Context, conv entities.ConversationRef, placeholderID string) bool {
	return r.deliver(ctx, conv, placeholderID, entities.Reply{Text: MsgAnswerFailed})
}

// deliver replaces the placeholder in replace mode and sends a new message
// otherwise. A failed replace falls back to a send.
func (r *ResponseRenderer) deliver(ctx context.Context, conv entities.ConversationRef, placeholderID string, reply entities.Reply) bool {
	if r.placeholderMode == config.PlaceholderReplace && placeholderID != "" {
		if r.out.replace(ctx, conv, placeholderID, reply) {
			return true
		}
	}
	_, ok := r.out.send(ctx, conv, reply)
	return ok
}
