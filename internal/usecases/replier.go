package usecases

import (
	"context"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

// replier wraps the messenger so that delivery failures are logged and
// counted but never reach the caller.
type replier struct {
	messenger interfaces.Messenger
	logger    logging.Logger
	metrics   *monitoring.Metrics
}

func (r replier) send(ctx context.Context, conv entities.ConversationRef, reply entities.Reply) (string, bool) {
	id, err := r.messenger.SendMessage(ctx, conv, reply)
	if err != nil {
		r.metrics.DeliveryFailed("send")
		r.logger.WithFields(logging.Fields{
			"request_id":      logging.RequestIDFromContext(ctx),
			"conversation_id": conv.ConversationID,
		}).WithError(err).Error("Failed to send message")
		return "", false
	}
	return id, true
}

func (r replier) replace(ctx context.Context, conv entities.ConversationRef, activityID string, reply entities.Reply) bool {
	if err := r.messenger.ReplaceMessage(ctx, conv, activityID, reply); err != nil {
		r.metrics.DeliveryFailed("replace")
		r.logger.WithFields(logging.Fields{
			"request_id":      logging.RequestIDFromContext(ctx),
			"conversation_id": conv.ConversationID,
			"activity_id":     activityID,
		}).WithError(err).Error("Failed to replace message")
		return false
	}
	return true
}

func (r replier) text(ctx context.Context, conv entities.ConversationRef, text string) bool {
	_, ok := r.send(ctx, conv, entities.Reply{Text: text})
	return ok
}
