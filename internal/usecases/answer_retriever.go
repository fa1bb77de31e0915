package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/interfaces"
	"teams_bridge/internal/logging"
)

const logQuestionChars = 120

var ErrAnswerUnavailable = errors.New("question answering is not configured")

type AnswerRetriever struct {
	kb     interfaces.KnowledgeBase
	logger logging.Logger
}

// NewAnswerRetriever accepts a nil knowledge base when the query service is
// not configured.
func NewAnswerRetriever(kb interfaces.KnowledgeBase, logger logging.Logger) *AnswerRetriever {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &AnswerRetriever{kb: kb, logger: logger}
}

func (r *AnswerRetriever) Available() bool {
	return r.kb != nil
}

// Retrieve asks the knowledge base on behalf of tenantID. A blank answer is
// replaced by MsgNoAnswer.
func (r *AnswerRetriever) Retrieve(ctx context.Context, tenantID, question string) (entities.Answer, error) {
	if r.kb == nil {
		return entities.Answer{}, ErrAnswerUnavailable
	}

	answer, err := r.kb.Query(ctx, tenantID, question)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"request_id": logging.RequestIDFromContext(ctx),
			"tenant_id":  tenantID,
			"question":   logging.Snippet(question, logQuestionChars),
		}).WithError(err).Error("Knowledge query failed")
		return entities.Answer{}, fmt.Errorf("query knowledge base: %w", err)
	}
	if strings.TrimSpace(answer.Text) == "" {
		answer.Text = MsgNoAnswer
	}
	return answer, nil
}
