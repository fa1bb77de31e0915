package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"teams_bridge/internal/logging"
	"teams_bridge/internal/monitoring"
)

const (
	maxErrorBodyBytes    = 4 << 10
	maxResponseBodyBytes = 1 << 20

	defaultBackendTimeout = 15 * time.Second
	defaultRetryBaseDelay = 200 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
)

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient gateway failure.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ShouldRetry retries transport errors and transient gateway statuses.
// Cancellation of the caller's context is never retried.
func ShouldRetry(_ *http.Response, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// NewRetryExecutor builds the executor shared by the idempotent backend calls.
func NewRetryExecutor(maxRetries int) failsafe.Executor[*http.Response] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(ShouldRetry).
		WithBackoff(defaultRetryBaseDelay, defaultRetryMaxDelay).
		WithJitterFactor(0.1).
		WithMaxRetries(maxRetries).
		ReturnLastFailure().
		Build()
	return failsafe.With[*http.Response](policy)
}

// ClientOption configures the backend clients.
type ClientOption func(*backendClient)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *backendClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *backendClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries enables retries for idempotent calls. Zero disables them.
func WithMaxRetries(n int) ClientOption {
	return func(c *backendClient) {
		c.executor = NewRetryExecutor(n)
	}
}

func WithLogger(logger logging.Logger) ClientOption {
	return func(c *backendClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *monitoring.Metrics) ClientOption {
	return func(c *backendClient) {
		c.metrics = m
	}
}

// backendClient posts JSON to the internal backend functions.
type backendClient struct {
	service  string
	client   *http.Client
	timeout  time.Duration
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger
	metrics  *monitoring.Metrics
}

func newBackendClient(service string, opts ...ClientOption) backendClient {
	c := backendClient{
		service:  service,
		client:   &http.Client{},
		timeout:  defaultBackendTimeout,
		executor: NewRetryExecutor(0),
		logger:   logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type postRequest struct {
	url     string
	headers map[string]string
	body    any
	retry   bool
}

// postJSON sends one POST and decodes a 2xx body into out when out is non-nil.
// Non-2xx statuses come back as *StatusError.
func (c *backendClient) postJSON(ctx context.Context, r postRequest, out any) error {
	payload, err := json.Marshal(r.body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.service, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempt := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			_ = resp.Body.Close()
			return nil, &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return resp, nil
	}

	var resp *http.Response
	if r.retry && c.executor != nil {
		resp, err = c.executor.WithContext(ctx).Get(attempt)
	} else {
		resp, err = attempt()
	}
	if err != nil {
		c.metrics.UpstreamCall(c.service, monitoring.ResultError)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(out); err != nil {
			c.metrics.UpstreamCall(c.service, monitoring.ResultError)
			return fmt.Errorf("decode %s response: %w", c.service, err)
		}
	}
	c.metrics.UpstreamCall(c.service, monitoring.ResultOK)
	return nil
}
