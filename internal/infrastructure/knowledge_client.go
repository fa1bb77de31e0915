package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"teams_bridge/internal/entities"
)

const (
	ServiceRAGQuery    = "rag_query"
	ServiceRAGFeedback = "rag_feedback"
)

// KnowledgeClient talks to the knowledge-query backend: questions go to the
// query URL, votes to the feedback URL.
type KnowledgeClient struct {
	query         backendClient
	feedback      backendClient
	queryURL      string
	feedbackURL   string
	apiKey        string
	internalToken string
	source        string
}

type KnowledgeConfig struct {
	QueryURL      string
	FeedbackURL   string
	APIKey        string
	InternalToken string
	Source        string
}

func NewKnowledgeClient(cfg KnowledgeConfig, opts ...ClientOption) *KnowledgeClient {
	source := cfg.Source
	if source == "" {
		source = "teams"
	}
	return &KnowledgeClient{
		query:         newBackendClient(ServiceRAGQuery, opts...),
		feedback:      newBackendClient(ServiceRAGFeedback, opts...),
		queryURL:      cfg.QueryURL,
		feedbackURL:   cfg.FeedbackURL,
		apiKey:        cfg.APIKey,
		internalToken: cfg.InternalToken,
		source:        source,
	}
}

type queryRequest struct {
	Question string `json:"question"`
	Source   string `json:"source"`
}

type querySource struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	UpdatedAt string `json:"updated_at"`
}

type queryResponse struct {
	Answer  *string       `json:"answer"`
	Sources []querySource `json:"sources"`
	QALogID logID         `json:"qa_log_id"`
}

// Query asks a question on behalf of a tenant. Answer.Text is empty when the
// backend returned no answer.
func (c *KnowledgeClient) Query(ctx context.Context, tenantID, question string) (entities.Answer, error) {
	var out queryResponse
	err := c.query.postJSON(ctx, postRequest{
		url: c.queryURL,
		headers: map[string]string{
			"apikey":      c.apiKey,
			"x-tenant-id": tenantID,
		},
		body:  queryRequest{Question: question, Source: c.source},
		retry: true,
	}, &out)
	if err != nil {
		return entities.Answer{}, err
	}

	answer := entities.Answer{FeedbackID: string(out.QALogID)}
	if out.Answer != nil {
		answer.Text = *out.Answer
	}
	for _, s := range out.Sources {
		answer.Sources = append(answer.Sources, entities.Source{
			Title:     strings.TrimSpace(s.Title),
			URL:       strings.TrimSpace(s.URL),
			Platform:  strings.TrimSpace(s.Source),
			UpdatedAt: parseTimestamp(s.UpdatedAt),
		})
	}
	return answer, nil
}

type feedbackRequest struct {
	QALogID     string `json:"qa_log_id"`
	Feedback    string `json:"feedback"`
	Source      string `json:"source"`
	TeamsUserID string `json:"teams_user_id"`
}

// SubmitFeedback posts one vote. It is not retried.
func (c *KnowledgeClient) SubmitFeedback(ctx context.Context, fb entities.Feedback) error {
	return c.feedback.postJSON(ctx, postRequest{
		url: c.feedbackURL,
		headers: map[string]string{
			"apikey":           c.apiKey,
			"x-internal-token": c.internalToken,
		},
		body: feedbackRequest{
			QALogID:     fb.FeedbackID,
			Feedback:    fb.Value,
			Source:      c.source,
			TeamsUserID: fb.UserID,
		},
	}, nil)
}

// logID accepts a string or numeric identifier. Numbers keep their exact
// digits; any other JSON value decodes to "".
type logID string

func (id *logID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = logID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*id = ""
		return nil
	}
	*id = logID(n.String())
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02",
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
