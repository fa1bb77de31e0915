package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

const recordTimeout = 5 * time.Second

type TurnOutcome string

const (
	OutcomeIgnored             TurnOutcome = "ignored"
	OutcomeFeedback            TurnOutcome = "feedback"
	OutcomeFeedbackDropped     TurnOutcome = "feedback_dropped"
	OutcomeUnknownOrganization TurnOutcome = "unknown_organization"
	OutcomeOnboarding          TurnOutcome = "onboarding"
	OutcomeAnswerUnavailable   TurnOutcome = "answer_unavailable"
	OutcomeAnswered            TurnOutcome = "answered"
	OutcomeAnswerFailed        TurnOutcome = "answer_failed"
	OutcomePanicked            TurnOutcome = "panicked"
)

// TurnDispatcher routes one inbound event through feedback, onboarding or
// the answer flow. It holds no per-turn state.
type TurnDispatcher struct {
	feedback  *FeedbackCollector
	resolver  *TenantResolver
	claims    *ClaimFlow
	retriever *AnswerRetriever
	renderer  *ResponseRenderer
	out       replier
	recorder  interfaces.TurnRecorder
	logger    logging.Logger
	metrics   *monitoring.Metrics
}

type DispatcherConfig struct {
	Feedback  *FeedbackCollector
	Resolver  *TenantResolver
	Claims    *ClaimFlow
	Retriever *AnswerRetriever
	Renderer  *ResponseRenderer
	Messenger interfaces.Messenger
	// Recorder is optional.
	Recorder interfaces.TurnRecorder
	Logger   logging.Logger
	Metrics  *monitoring.Metrics
}

func NewTurnDispatcher(cfg DispatcherConfig) *TurnDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &TurnDispatcher{
		feedback:  cfg.Feedback,
		resolver:  cfg.Resolver,
		claims:    cfg.Claims,
		retriever: cfg.Retriever,
		renderer:  cfg.Renderer,
		out:       replier{messenger: cfg.Messenger, logger: logger, metrics: cfg.Metrics},
		recorder:  cfg.Recorder,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// HandleTurn processes one event to completion. Failures end up as user
// replies or log lines; a panic is recovered and answered with a generic
// message.
func (d *TurnDispatcher) HandleTurn(ctx context.Context, ev entities.InboundEvent) (outcome TurnOutcome) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.WithFields(logging.Fields{
				"request_id": logging.RequestIDFromContext(ctx),
				"panic":      fmt.Sprint(rec),
			}).Error("Turn handler panicked")
			d.replyInternalError(ctx, ev.Conversation)
			outcome = OutcomePanicked
		}
		d.finish(ctx, ev, outcome, time.Since(start))
	}()

	if ev.IsFeedback() {
		if d.feedback.Collect(ctx, ev) == FeedbackRecorded {
			return OutcomeFeedback
		}
		return OutcomeFeedbackDropped
	}

	if ev.Kind != entities.EventMessage || strings.TrimSpace(ev.Text) == "" {
		return OutcomeIgnored
	}

	d.logger.WithFields(logging.Fields{
		"request_id":      logging.RequestIDFromContext(ctx),
		"text":            logging.Snippet(ev.Text, logQuestionChars),
		"organization_id": ev.OrganizationID,
		"conversation_id": ev.Conversation.ConversationID,
		"from":            ev.SenderID,
	}).Info("Teams message")

	if ev.OrganizationID == "" {
		d.out.text(ctx, ev.Conversation, MsgUnknownOrganization)
		return OutcomeUnknownOrganization
	}

	resolution := d.resolver.Resolve(ctx, ev.OrganizationID)
	if !resolution.Resolved() {
		d.claims.Start(ctx, ev.Conversation, ev.OrganizationID)
		return OutcomeOnboarding
	}

	return d.answer(ctx, ev, resolution.TenantID)
}

func (d *TurnDispatcher) answer(ctx context.Context, ev entities.InboundEvent, tenantID string) TurnOutcome {
	if !d.retriever.Available() {
		d.logger.WithField("request_id", logging.RequestIDFromContext(ctx)).Error("Question answering misconfigured")
		d.out.text(ctx, ev.Conversation, MsgAnswerUnavailable)
		return OutcomeAnswerUnavailable
	}

	placeholderID := d.renderer.SendPlaceholder(ctx, ev.Conversation)

	answer, err := d.retriever.Retrieve(ctx, tenantID, ev.Text)
	if errors.Is(err, ErrAnswerUnavailable) {
		d.renderer.deliver(ctx, ev.Conversation, placeholderID, entities.Reply{Text: MsgAnswerUnavailable})
		return OutcomeAnswerUnavailable
	}
	if err != nil {
		d.renderer.DeliverFailure(ctx, ev.Conversation, placeholderID)
		return OutcomeAnswerFailed
	}

	d.renderer.DeliverAnswer(ctx, ev.Conversation, placeholderID, answer)
	return OutcomeAnswered
}

func (d *TurnDispatcher) replyInternalError(ctx context.Context, conv entities.ConversationRef) {
	defer func() { _ = recover() }()
	d.out.text(ctx, conv, MsgInternalError)
}

func (d *TurnDispatcher) finish(ctx context.Context, ev entities.InboundEvent, outcome TurnOutcome, elapsed time.Duration) {
	d.metrics.ObserveTurn(string(outcome), elapsed)
	if d.recorder == nil || outcome == OutcomeIgnored {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := d.recorder.Record(ctx, entities.TurnRecord{
		RequestID:      logging.RequestIDFromContext(ctx),
		OrganizationID: ev.OrganizationID,
		ConversationID: ev.Conversation.ConversationID,
		Kind:           ev.Kind,
		Outcome:        string(outcome),
		Duration:       elapsed,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		d.logger.WithError(err).Warn("Failed to record turn")
	}
}
