package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/infrastructure"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
	"teams_bridge/internal/usecases"
)

const teamsMessage = `{
	"type": "message",
	"id": "act-1",
	"serviceUrl": "https://smba.trafficmanager.net/emea/",
	"from": {"id": "29:user", "aadObjectId": "aad-user"},
	"recipient": {"id": "28:bot", "name": "Innsyn"},
	"conversation": {"id": "a:conv", "tenantId": "org-1"},
	"channelData": {"tenant": {"id": "org-1"}},
	"text": "<at>Innsyn</at> where is the travel policy?"
}`

type recordingTurns struct {
	mu     sync.Mutex
	events []entities.InboundEvent
	ctxs   []context.Context
	errs   []error
}

func (r *recordingTurns) HandleTurn(ctx context.Context, ev entities.InboundEvent) usecases.TurnOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.ctxs = append(r.ctxs, ctx)
	r.errs = append(r.errs, ctx.Err())
	return usecases.OutcomeAnswered
}

type stubVerifier struct {
	err        error
	authHeader string
	serviceURL string
}

func (s *stubVerifier) Verify(_ context.Context, authHeader, serviceURL string) (*infrastructure.BotClaims, error) {
	s.authHeader = authHeader
	s.serviceURL = serviceURL
	if s.err != nil {
		return nil, s.err
	}
	return &infrastructure.BotClaims{ServiceURL: serviceURL}, nil
}

func newTestRouter(t *testing.T, turns TurnHandler, verifier TokenVerifier, rc RouteConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewDiscardLogger()
	h := NewHandler(turns, HandlerConfig{
		TurnTimeout: time.Minute,
		Diagnostics: logging.Fields{"hasAppId": true},
		Logger:      logger,
	})
	h.spawn = func(f func()) { f() }

	r := gin.New()
	SetupRoutes(r, h, NewMiddleware(verifier, logger), monitoring.NewMetrics("test"), rc)
	return r
}

func postActivity(r *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	r := newTestRouter(t, &recordingTurns{}, nil, RouteConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealth_ReportsDiagnostics(t *testing.T) {
	r := newTestRouter(t, &recordingTurns{}, nil, RouteConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string         `json:"status"`
		Config map[string]any `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, true, body.Config["hasAppId"])
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &recordingTurns{}, nil, RouteConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "teams_bridge_service_info")
}

func TestHandleActivity_DispatchesTurn(t *testing.T) {
	for _, path := range []string{"/teams", "/api/messages"} {
		t.Run(path, func(t *testing.T) {
			turns := &recordingTurns{}
			r := newTestRouter(t, turns, nil, RouteConfig{})

			w := postActivity(r, path, teamsMessage, map[string]string{"X-Request-ID": "req-42"})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

			require.Len(t, turns.events, 1)
			ev := turns.events[0]
			assert.Equal(t, entities.EventMessage, ev.Kind)
			assert.Equal(t, "where is the travel policy?", ev.Text)
			assert.Equal(t, "org-1", ev.OrganizationID)
			assert.Equal(t, "a:conv", ev.Conversation.ConversationID)

			ctx := turns.ctxs[0]
			assert.Equal(t, "req-42", logging.RequestIDFromContext(ctx))
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
		})
	}
}

func TestHandleActivity_TurnOutlivesRequest(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, nil, RouteConfig{})

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader(teamsMessage)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	cancel()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Len(t, turns.errs, 1)
	assert.NoError(t, turns.errs[0])
}

func TestHandleActivity_InvalidJSON(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, nil, RouteConfig{})

	w := postActivity(r, "/teams", "{not json", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, turns.events)
}

func TestHandleActivity_TruncatesLongQuestions(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, nil, RouteConfig{})

	long := strings.Repeat("å", MaxQuestionRunes+10)
	body := `{"type":"message","conversation":{"id":"c"},"text":"` + long + `"}`
	w := postActivity(r, "/teams", body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, turns.events, 1)
	assert.Equal(t, MaxQuestionRunes, len([]rune(turns.events[0].Text)))
}

func TestBotAuthRequired(t *testing.T) {
	t.Run("valid token reaches the handler with the body intact", func(t *testing.T) {
		turns := &recordingTurns{}
		verifier := &stubVerifier{}
		r := newTestRouter(t, turns, verifier, RouteConfig{})

		w := postActivity(r, "/teams", teamsMessage, map[string]string{"Authorization": "Bearer abc"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bearer abc", verifier.authHeader)
		assert.Equal(t, "https://smba.trafficmanager.net/emea/", verifier.serviceURL)
		require.Len(t, turns.events, 1)
		assert.Equal(t, "where is the travel policy?", turns.events[0].Text)
	})

	t.Run("rejected token never dispatches", func(t *testing.T) {
		turns := &recordingTurns{}
		r := newTestRouter(t, turns, &stubVerifier{err: errors.New("bad token")}, RouteConfig{})

		w := postActivity(r, "/teams", teamsMessage, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, turns.events)
	})

	t.Run("health stays public", func(t *testing.T) {
		r := newTestRouter(t, &recordingTurns{}, &stubVerifier{err: errors.New("bad token")}, RouteConfig{})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitPerClient(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, nil, RouteConfig{RateLimit: 0.001, RateBurst: 1})

	first := postActivity(r, "/teams", teamsMessage, nil)
	second := postActivity(r, "/teams", teamsMessage, nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, turns.events, 1)
}

func TestRequestSizeLimiter(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, &stubVerifier{}, RouteConfig{MaxBodyBytes: 64})

	w := postActivity(r, "/teams", teamsMessage, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, turns.events)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(logging.NewDiscardLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("hel\x00lo"))
	assert.Equal(t, "ab", SanitizeString("a\xffb"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "æøå", TruncateString("æøåæøå", 3))
	assert.Equal(t, "short", TruncateString("short", 10))
}

func TestHandleActivity_ResponseHasNoBody(t *testing.T) {
	r := newTestRouter(t, &recordingTurns{}, nil, RouteConfig{})

	w := postActivity(r, "/teams", teamsMessage, nil)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestHandleActivity_DropsNullPaddedWhitespace(t *testing.T) {
	turns := &recordingTurns{}
	r := newTestRouter(t, turns, nil, RouteConfig{})

	body := `{"type":"message","conversation":{"id":"c"},"text":"\u0000 \u0000"}`
	w := postActivity(r, "/teams", body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, turns.events, 1)
	assert.Equal(t, "", turns.events[0].Text)
}

type blockingTurns struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (b *blockingTurns) HandleTurn(ctx context.Context, _ entities.InboundEvent) usecases.TurnOutcome {
	close(b.started)
	<-b.release
	b.finished.Store(true)
	return usecases.OutcomeAnswered
}

func TestHandler_DrainWaitsForInflightTurns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	turns := &blockingTurns{started: make(chan struct{}), release: make(chan struct{})}
	h := NewHandler(turns, HandlerConfig{TurnTimeout: time.Minute})
	r := gin.New()
	SetupRoutes(r, h, NewMiddleware(nil, nil), nil, RouteConfig{})

	w := postActivity(r, "/teams", teamsMessage, nil)
	require.Equal(t, http.StatusOK, w.Code)
	<-turns.started

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Drain(short), context.DeadlineExceeded)
	assert.False(t, turns.finished.Load())

	close(turns.release)
	require.NoError(t, h.Drain(context.Background()))
	assert.True(t, turns.finished.Load())
}

func TestHandler_DrainWithNothingInflight(t *testing.T) {
	h := NewHandler(&recordingTurns{}, HandlerConfig{})
	assert.NoError(t, h.Drain(context.Background()))
}
