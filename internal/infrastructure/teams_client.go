package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"teams_bridge/internal/entities"
	"teams_bridge/internal/logging"
)

const (
	ServiceTeamsConnector = "teams_connector"

	botFrameworkScope = "https://api.botframework.com/.default"
)

var ErrUntrustedServiceURL = errors.New("service url is not a trusted Bot Framework host")

var trustedServiceHostSuffixes = []string{
	".botframework.com",
	".trafficmanager.net",
	".teams.microsoft.com",
}

// IsTrustedServiceURL reports whether rawURL points at a Bot Framework or
// Teams connector host over https.
func IsTrustedServiceURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, suffix := range trustedServiceHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// TeamsCredentials configures outbound connector authentication. An empty
// AppID sends unauthenticated requests, as the emulator expects.
type TeamsCredentials struct {
	AppID       string
	AppPassword string
	TokenURL    string
}

// TeamsClient sends and replaces messages through the Bot Framework
// connector REST API.
type TeamsClient struct {
	client  *http.Client
	apiBase string
	limiter *ConversationLimiter
	logger  logging.Logger
}

type TeamsOption func(*teamsOptions)

type teamsOptions struct {
	baseClient *http.Client
	apiBase    string
	limiter    *ConversationLimiter
	logger     logging.Logger
}

// WithAPIBase sends every request to base instead of the activity's
// serviceUrl. The trusted-host check is skipped.
func WithAPIBase(base string) TeamsOption {
	return func(o *teamsOptions) { o.apiBase = strings.TrimRight(strings.TrimSpace(base), "/") }
}

func WithTeamsHTTPClient(hc *http.Client) TeamsOption {
	return func(o *teamsOptions) {
		if hc != nil {
			o.baseClient = hc
		}
	}
}

// WithConversationLimiter paces sends and replaces per conversation.
func WithConversationLimiter(cl *ConversationLimiter) TeamsOption {
	return func(o *teamsOptions) { o.limiter = cl }
}

func WithTeamsLogger(logger logging.Logger) TeamsOption {
	return func(o *teamsOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewTeamsClient(creds TeamsCredentials, opts ...TeamsOption) *TeamsClient {
	o := teamsOptions{
		baseClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.baseClient
	if strings.TrimSpace(creds.AppID) != "" {
		cc := clientcredentials.Config{
			ClientID:     creds.AppID,
			ClientSecret: creds.AppPassword,
			TokenURL:     creds.TokenURL,
			Scopes:       []string{botFrameworkScope},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, o.baseClient)
		client = cc.Client(ctx)
		client.Timeout = o.baseClient.Timeout
	}

	return &TeamsClient{client: client, apiBase: o.apiBase, limiter: o.limiter, logger: o.logger}
}

type resourceResponse struct {
	ID string `json:"id"`
}

func (c *TeamsClient) SendMessage(ctx context.Context, conv entities.ConversationRef, reply entities.Reply) (string, error) {
	endpoint, err := c.activitiesURL(conv, "")
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx, conv.ConversationID); err != nil {
		return "", fmt.Errorf("teams send: %w", err)
	}
	var out resourceResponse
	if err := c.do(ctx, http.MethodPost, endpoint, replyActivity(conv, reply), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *TeamsClient) ReplaceMessage(ctx context.Context, conv entities.ConversationRef, activityID string, reply entities.Reply) error {
	if strings.TrimSpace(activityID) == "" {
		return errors.New("replace message: missing activity id")
	}
	endpoint, err := c.activitiesURL(conv, activityID)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx, conv.ConversationID); err != nil {
		return fmt.Errorf("teams replace: %w", err)
	}
	activity := replyActivity(conv, reply)
	activity.ID = activityID
	return c.do(ctx, http.MethodPut, endpoint, activity, nil)
}

func (c *TeamsClient) activitiesURL(conv entities.ConversationRef, activityID string) (string, error) {
	if strings.TrimSpace(conv.ConversationID) == "" {
		return "", errors.New("missing conversation id")
	}
	base := c.apiBase
	if base == "" {
		if !IsTrustedServiceURL(conv.ServiceURL) {
			return "", fmt.Errorf("%w: %q", ErrUntrustedServiceURL, conv.ServiceURL)
		}
		base = strings.TrimRight(strings.TrimSpace(conv.ServiceURL), "/")
	}
	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities", base, url.PathEscape(conv.ConversationID))
	if activityID != "" {
		endpoint += "/" + url.PathEscape(activityID)
	}
	return endpoint, nil
}

func (c *TeamsClient) do(ctx context.Context, method, endpoint string, activity Activity, out any) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("teams %s: %w", strings.ToLower(method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{Service: ServiceTeamsConnector, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	// Some connector responses carry no body.
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		c.logger.WithError(err).Debug("Undecodable connector response")
	}
	return nil
}
