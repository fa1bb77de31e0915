package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/infrastructure"
	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
	"teams_bridge/internal/usecases"
)

const defaultTurnTimeout = 60 * time.Second

// TurnHandler runs one inbound event to completion.
type TurnHandler interface {
	HandleTurn(ctx context.Context, ev entities.InboundEvent) usecases.TurnOutcome
}

type Handler struct {
	turns       TurnHandler
	turnTimeout time.Duration
	diagnostics logging.Fields
	logger      logging.Logger
	spawn       func(func())
	inflight    sync.WaitGroup
}

type HandlerConfig struct {
	TurnTimeout time.Duration
	// Diagnostics is served by /healthz; it must hold presence flags only.
	Diagnostics logging.Fields
	Logger      logging.Logger
}

func NewHandler(turns TurnHandler, cfg HandlerConfig) *Handler {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Handler{
		turns:       turns,
		turnTimeout: cfg.TurnTimeout,
		diagnostics: cfg.Diagnostics,
		logger:      cfg.Logger,
		spawn:       func(f func()) { go f() },
	}
}

// RouteConfig carries the inbound limits applied to the activity endpoint.
type RouteConfig struct {
	RateLimit    rate.Limit
	RateBurst    int
	MaxBodyBytes int64
}

func SetupRoutes(r *gin.Engine, h *Handler, mw *Middleware, metrics *monitoring.Metrics, rc RouteConfig) {
	if rc.MaxBodyBytes <= 0 {
		rc.MaxBodyBytes = 1 << 20
	}

	r.Use(RequestID())
	r.Use(Recovery(h.logger))
	r.Use(RequestLogger(h.logger))
	r.Use(SecurityHeaders())
	r.Use(metrics.Middleware())

	r.GET("/", h.Root)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", metrics.Handler())

	activities := r.Group("/")
	activities.Use(RequestSizeLimiter(rc.MaxBodyBytes))
	if rc.RateLimit > 0 {
		activities.Use(mw.RateLimitPerClient(rc.RateLimit, rc.RateBurst))
	}
	activities.Use(mw.BotAuthRequired())
	{
		activities.POST("/teams", h.HandleActivity)
		activities.POST("/api/messages", h.HandleActivity)
	}
}

func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"config": h.diagnostics,
	})
}

// HandleActivity acknowledges a Bot Framework activity and processes it on
// its own goroutine. The turn outlives the request under its own timeout.
func (h *Handler) HandleActivity(c *gin.Context) {
	var activity infrastructure.Activity
	if err := c.ShouldBindJSON(&activity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
		return
	}

	activity.Text = SanitizeString(activity.Text)
	ev := infrastructure.ToInboundEvent(activity)
	ev.Text = TruncateString(ev.Text, MaxQuestionRunes)

	requestID := c.GetString(ctxKeyRequestID)
	ctx := logging.WithRequestID(context.WithoutCancel(c.Request.Context()), requestID)

	h.logger.WithFields(logging.Fields{
		"request_id":      requestID,
		"activity_type":   activity.Type,
		"channel_id":      activity.ChannelID,
		"kind":            ev.Kind,
		"conversation_id": ev.Conversation.ConversationID,
	}).Debug("Activity received")

	h.inflight.Add(1)
	h.spawn(func() {
		defer h.inflight.Done()
		turnCtx, cancel := context.WithTimeout(ctx, h.turnTimeout)
		defer cancel()
		h.turns.HandleTurn(turnCtx, ev)
	})

	c.Status(http.StatusOK)
}

// Drain waits for dispatched turns to finish, or for ctx to end. Call it
// after the HTTP server has stopped accepting requests.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
