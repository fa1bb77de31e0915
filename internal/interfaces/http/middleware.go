package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"teams_bridge/internal/infrastructure"
	"teams_bridge/internal/logging"
)

const (
	ctxKeyRequestID = "request_id"

	maxTrackedClients = 10000
)

// TokenVerifier validates the Bot Framework bearer token of an activity.
type TokenVerifier interface {
	Verify(ctx context.Context, authHeader, serviceURL string) (*infrastructure.BotClaims, error)
}

type Middleware struct {
	verifier     TokenVerifier
	logger       logging.Logger
	rateLimiters map[string]*rate.Limiter
	mu           sync.Mutex
}

// NewMiddleware takes a nil verifier when inbound authentication is
// disabled.
func NewMiddleware(verifier TokenVerifier, logger logging.Logger) *Middleware {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Middleware{
		verifier:     verifier,
		logger:       logger,
		rateLimiters: make(map[string]*rate.Limiter),
	}
}

// BotAuthRequired rejects activities whose bearer token does not verify. The
// body is read to find the activity's serviceUrl and restored for the
// handler.
func (m *Middleware) BotAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.verifier == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var envelope struct {
			ServiceURL string `json:"serviceUrl"`
		}
		_ = json.Unmarshal(body, &envelope)

		if _, err := m.verifier.Verify(c.Request.Context(), c.GetHeader("Authorization"), envelope.ServiceURL); err != nil {
			m.logger.WithFields(logging.Fields{
				"request_id": c.GetString(ctxKeyRequestID),
				"client_ip":  c.ClientIP(),
			}).WithError(err).Warn("Rejected unauthenticated activity")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Next()
	}
}

// RateLimitPerClient limits requests per client IP.
func (m *Middleware) RateLimitPerClient(r rate.Limit, b int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		m.mu.Lock()
		limiter, exists := m.rateLimiters[key]
		if !exists {
			if len(m.rateLimiters) >= maxTrackedClients {
				m.rateLimiters = make(map[string]*rate.Limiter)
			}
			limiter = rate.NewLimiter(r, b)
			m.rateLimiters[key] = limiter
		}
		m.mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// RequestID tags each request with X-Request-ID, generating one if absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logging.Fields{
			"request_id": c.GetString(ctxKeyRequestID),
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		}).Debug("HTTP request")
	}
}

// Recovery turns a handler panic into a 500.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logging.Fields{
					"request_id": c.GetString(ctxKeyRequestID),
					"error":      err,
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
				}).Error("Request handler panic")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
