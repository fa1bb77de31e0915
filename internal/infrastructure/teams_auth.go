package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenIDConfigURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"

	openIDMetadataTTL = 30 * time.Minute
	signingKeysTTL    = 30 * time.Minute
	tokenLeeway       = 5 * time.Minute
)

var (
	ErrMissingBearer      = errors.New("missing bearer token")
	ErrServiceURLMismatch = errors.New("token serviceurl does not match activity")
)

// BotClaims are the claims the Bot Framework puts in connector tokens.
type BotClaims struct {
	jwt.RegisteredClaims
	ServiceURL string `json:"serviceurl,omitempty"`
}

// BotTokenVerifier validates the bearer token on inbound activities against
// the Bot Framework OpenID metadata. The JWKS named by the metadata is held
// by keyfunc, which refreshes it periodically and on unknown kids.
type BotTokenVerifier struct {
	ctx       context.Context
	client    *http.Client
	configURL string
	appID     string
	now       func() time.Time

	mu         sync.Mutex
	issuer     string
	jwksURI    string
	keys       keyfunc.Keyfunc
	stopKeys   context.CancelFunc
	cacheUntil time.Time
}

// NewBotTokenVerifier keeps its key refresh running until ctx is done.
func NewBotTokenVerifier(ctx context.Context, appID, configURL string, client *http.Client) *BotTokenVerifier {
	if strings.TrimSpace(configURL) == "" {
		configURL = DefaultOpenIDConfigURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &BotTokenVerifier{
		ctx:       ctx,
		client:    client,
		configURL: strings.TrimSpace(configURL),
		appID:     strings.TrimSpace(appID),
		now:       time.Now,
	}
}

// Verify checks signature, audience, issuer and lifetime of the bearer token
// and that the activity's serviceUrl is trusted and matches the token.
func (v *BotTokenVerifier) Verify(ctx context.Context, authHeader, serviceURL string) (*BotClaims, error) {
	raw := strings.TrimSpace(authHeader)
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return nil, ErrMissingBearer
	}
	raw = strings.TrimSpace(raw[7:])
	if raw == "" {
		return nil, ErrMissingBearer
	}

	issuer, keys, err := v.metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("load openid metadata: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(v.now),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &BotClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, keys.KeyfuncCtx(ctx), opts...); err != nil {
		return nil, err
	}

	if !IsTrustedServiceURL(serviceURL) {
		return nil, fmt.Errorf("%w: %q", ErrUntrustedServiceURL, serviceURL)
	}
	if claims.ServiceURL != "" && !sameHost(claims.ServiceURL, serviceURL) {
		return nil, ErrServiceURLMismatch
	}
	return claims, nil
}

type openIDConfig struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// metadata returns the cached issuer and key set, reloading the OpenID
// configuration when it is stale. A new jwks_uri replaces the key set.
func (v *BotTokenVerifier) metadata(ctx context.Context) (string, keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.keys != nil && v.now().Before(v.cacheUntil) {
		return v.issuer, v.keys, nil
	}

	var cfg openIDConfig
	if err := v.getJSON(ctx, v.configURL, &cfg); err != nil {
		return "", nil, fmt.Errorf("openid config: %w", err)
	}
	jwksURI := strings.TrimSpace(cfg.JWKSURI)
	if jwksURI == "" {
		return "", nil, errors.New("openid config has no jwks_uri")
	}

	if v.keys == nil || jwksURI != v.jwksURI {
		keysCtx, stop := context.WithCancel(v.ctx)
		keys, err := keyfunc.NewDefaultOverrideCtx(keysCtx, []string{jwksURI}, keyfunc.Override{
			Client:            v.client,
			RefreshInterval:   signingKeysTTL,
			RefreshUnknownKID: rate.NewLimiter(rate.Every(time.Minute), 1),
		})
		if err != nil {
			stop()
			return "", nil, fmt.Errorf("jwks: %w", err)
		}
		if v.stopKeys != nil {
			v.stopKeys()
		}
		v.keys, v.stopKeys, v.jwksURI = keys, stop, jwksURI
	}

	v.issuer = strings.TrimSpace(cfg.Issuer)
	v.cacheUntil = v.now().Add(openIDMetadataTTL)
	return v.issuer, v.keys, nil
}

func (v *BotTokenVerifier) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(strings.TrimSpace(a))
	ub, errB := url.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
