package usecases

import (
	"context"
	"strings"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

type FeedbackOutcome string

const (
	FeedbackRecorded FeedbackOutcome = "feedback_recorded"
	FeedbackDropped  FeedbackOutcome = "feedback_dropped"
)

// FeedbackCollector forwards thumbs-up/down clicks to the feedback endpoint.
type FeedbackCollector struct {
	sink   interfaces.FeedbackSink
	out    replier
	logger logging.Logger
}

// NewFeedbackCollector accepts a nil sink when feedback is not configured;
// clicks are then dropped without a reply.
func NewFeedbackCollector(sink interfaces.FeedbackSink, messenger interfaces.Messenger, logger logging.Logger, metrics *monitoring.Metrics) *FeedbackCollector {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &FeedbackCollector{
		sink:   sink,
		out:    replier{messenger: messenger, logger: logger, metrics: metrics},
		logger: logger,
	}
}

// Collect issues the vote post and thanks the user without waiting for it.
// It returns once the post has finished so the turn covers its lifetime.
func (c *FeedbackCollector) Collect(ctx context.Context, ev entities.InboundEvent) FeedbackOutcome {
	fb, ok := feedbackFromEvent(ev)
	if !ok || c.sink == nil {
		return FeedbackDropped
	}

	posted := make(chan error, 1)
	go func() {
		posted <- c.sink.SubmitFeedback(ctx, fb)
	}()

	c.out.text(ctx, ev.Conversation, MsgFeedbackThanks)

	if err := <-posted; err != nil {
		c.logger.WithFields(logging.Fields{
			"request_id": logging.RequestIDFromContext(ctx),
			"qa_log_id":  fb.FeedbackID,
			"feedback":   fb.Value,
		}).WithError(err).Warn("Feedback submission failed")
	}
	return FeedbackRecorded
}

func feedbackFromEvent(ev entities.InboundEvent) (entities.Feedback, bool) {
	if !ev.IsFeedback() {
		return entities.Feedback{}, false
	}
	id := strings.TrimSpace(ev.Action.FeedbackID)
	value := strings.ToLower(strings.TrimSpace(ev.Action.Feedback))
	if id == "" || (value != entities.FeedbackUp && value != entities.FeedbackDown) {
		return entities.Feedback{}, false
	}
	return entities.Feedback{FeedbackID: id, Value: value, UserID: ev.UserID()}, true
}
