package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	AnswerFormatCard  = "card"
	AnswerFormatPlain = "plain"

	PlaceholderReplace = "replace"
	PlaceholderAppend  = "append"
	PlaceholderOff     = "off"

	// DefaultBotFrameworkTenant is the token authority for multi-tenant bots.
	DefaultBotFrameworkTenant = "botframework.com"

	claimMintPath = "/functions/v1/mint-teams-claim-token"

	ginModeDebug   = "debug"
	ginModeRelease = "release"
	ginModeTest    = "test"
)

// Config is built once at startup and injected into every component.
type Config struct {
	Server  ServerConfig
	Teams   TeamsConfig
	Backend BackendConfig
	Render  RenderConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port        string        `envconfig:"PORT" default:"3000"`
	GinMode     string        `envconfig:"GIN_MODE" default:"release"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT" default:"60s"`
	// ShutdownTimeout bounds the HTTP shutdown plus the drain of running turns.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       float64       `envconfig:"INBOUND_RATE_LIMIT" default:"20"`
	RateBurst       int           `envconfig:"INBOUND_RATE_BURST" default:"40"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// TeamsConfig holds the Bot Framework credentials. The SDK's mixed-case
// names (MicrosoftAppId, ...) are accepted as fallbacks.
type TeamsConfig struct {
	AppID           string `envconfig:"MICROSOFT_APP_ID"`
	AppPassword     string `envconfig:"MICROSOFT_APP_PASSWORD"`
	AppType         string `envconfig:"MICROSOFT_APP_TYPE" default:"MultiTenant"`
	AppTenantID     string `envconfig:"MICROSOFT_APP_TENANT_ID"`
	OpenIDConfigURL string `envconfig:"TEAMS_OPENID_CONFIG_URL" default:"https://login.botframework.com/v1/.well-known/openidconfiguration"`
	LoginBase       string `envconfig:"TEAMS_LOGIN_BASE" default:"https://login.microsoftonline.com"`
	APIBase         string `envconfig:"TEAMS_API_BASE"`
	// Outbound pacing per conversation; zero disables it.
	SendRate  float64 `envconfig:"TEAMS_SEND_RATE" default:"1"`
	SendBurst int     `envconfig:"TEAMS_SEND_BURST" default:"7"`
}

type BackendConfig struct {
	TenantLookupURL string        `envconfig:"TEAMS_TENANT_LOOKUP_URL"`
	RAGQueryURL     string        `envconfig:"RAG_QUERY_URL"`
	RAGFeedbackURL  string        `envconfig:"RAG_FEEDBACK_URL"`
	RAGFeedbackPath string        `envconfig:"RAG_FEEDBACK_PATH" default:"rag-feedback"`
	APIKey          string        `envconfig:"SUPABASE_ANON_KEY"`
	InternalToken   string        `envconfig:"INTERNAL_LOOKUP_SECRET"`
	ClaimBaseURL    string        `envconfig:"SUPABASE_URL"`
	Source          string        `envconfig:"QUERY_SOURCE" default:"teams"`
	Timeout         time.Duration `envconfig:"BACKEND_TIMEOUT" default:"15s"`
	MaxRetries      int           `envconfig:"BACKEND_MAX_RETRIES" default:"0"`
}

type RenderConfig struct {
	AnswerFormat    string `envconfig:"ANSWER_FORMAT" default:"card"`
	PlaceholderMode string `envconfig:"PLACEHOLDER_MODE" default:"replace"`
	ClaimQRCode     bool   `envconfig:"CLAIM_QR_CODE" default:"false"`
}

type StorageConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// LoadEnv loads local env files when present. The process environment wins
// for keys it already defines.
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		if logger != nil {
			logger.Debugf("Loaded env file %s", file)
		}
	}
}

// Load reads the configuration from the environment.
func Load(logger *logrus.Logger) (Config, error) {
	LoadEnv(logger)

	var cfg Config
	if err := envconfig.Process("", &cfg.Server); err != nil {
		return Config{}, fmt.Errorf("server config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Teams); err != nil {
		return Config{}, fmt.Errorf("teams config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Backend); err != nil {
		return Config{}, fmt.Errorf("backend config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Render); err != nil {
		return Config{}, fmt.Errorf("render config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Storage); err != nil {
		return Config{}, fmt.Errorf("storage config: %w", err)
	}

	legacy(&cfg.Teams.AppID, "MICROSOFT_APP_ID", "MicrosoftAppId")
	legacy(&cfg.Teams.AppPassword, "MICROSOFT_APP_PASSWORD", "MicrosoftAppPassword")
	legacy(&cfg.Teams.AppType, "MICROSOFT_APP_TYPE", "MicrosoftAppType")
	legacy(&cfg.Teams.AppTenantID, "MICROSOFT_APP_TENANT_ID", "MicrosoftAppTenantId")

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func legacy(field *string, key, legacyKey string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	if v := strings.TrimSpace(os.Getenv(legacyKey)); v != "" {
		*field = v
	}
}

func (c *Config) normalize() {
	c.Server.GinMode = strings.ToLower(strings.TrimSpace(c.Server.GinMode))
	c.Render.AnswerFormat = strings.ToLower(strings.TrimSpace(c.Render.AnswerFormat))
	c.Render.PlaceholderMode = strings.ToLower(strings.TrimSpace(c.Render.PlaceholderMode))
	c.Backend.ClaimBaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.ClaimBaseURL), "/")
	c.Teams.APIBase = strings.TrimRight(strings.TrimSpace(c.Teams.APIBase), "/")
	if c.Backend.MaxRetries < 0 {
		c.Backend.MaxRetries = 0
	}
}

// Validate rejects malformed values. Absent backend settings are not an
// error: the affected feature reports itself unavailable at request time.
func (c Config) Validate() error {
	switch c.Render.AnswerFormat {
	case AnswerFormatCard, AnswerFormatPlain:
	default:
		return fmt.Errorf("invalid ANSWER_FORMAT %q (want %s or %s)", c.Render.AnswerFormat, AnswerFormatCard, AnswerFormatPlain)
	}
	switch c.Render.PlaceholderMode {
	case PlaceholderReplace, PlaceholderAppend, PlaceholderOff:
	default:
		return fmt.Errorf("invalid PLACEHOLDER_MODE %q (want replace, append or off)", c.Render.PlaceholderMode)
	}
	switch c.Server.GinMode {
	case ginModeDebug, ginModeRelease, ginModeTest:
	default:
		return fmt.Errorf("invalid GIN_MODE %q (want debug, release or test)", c.Server.GinMode)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.Server.TurnTimeout <= 0 {
		return fmt.Errorf("TURN_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// Diagnostics reports which settings are present, never their values.
func (c Config) Diagnostics() logrus.Fields {
	return logrus.Fields{
		"hasAppId":           c.Teams.AppID != "",
		"hasAppPassword":     c.Teams.AppPassword != "",
		"appType":            c.Teams.AppType,
		"hasAppTenantId":     c.Teams.AppTenantID != "",
		"hasTenantLookupUrl": c.Backend.TenantLookupURL != "",
		"hasRagQueryUrl":     c.Backend.RAGQueryURL != "",
		"hasAnonKey":         c.Backend.APIKey != "",
		"hasInternalSecret":  c.Backend.InternalToken != "",
		"hasSupabaseUrl":     c.Backend.ClaimBaseURL != "",
		"hasDatabaseUrl":     c.Storage.DatabaseURL != "",
		"answerFormat":       c.Render.AnswerFormat,
		"placeholderMode":    c.Render.PlaceholderMode,
	}
}

// AuthEnabled reports whether inbound Bot Framework tokens are verified.
func (t TeamsConfig) AuthEnabled() bool {
	return strings.TrimSpace(t.AppID) != ""
}

// TokenTenant is the AAD authority used for outbound connector tokens.
func (t TeamsConfig) TokenTenant() string {
	if strings.EqualFold(t.AppType, "SingleTenant") && strings.TrimSpace(t.AppTenantID) != "" {
		return strings.TrimSpace(t.AppTenantID)
	}
	return DefaultBotFrameworkTenant
}

// TokenURL is the client-credentials endpoint for outbound connector tokens.
func (t TeamsConfig) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(t.LoginBase, "/"), t.TokenTenant())
}

func (b BackendConfig) TenantLookupConfigured() bool {
	return b.TenantLookupURL != "" && b.APIKey != "" && b.InternalToken != ""
}

func (b BackendConfig) ClaimConfigured() bool {
	return b.ClaimBaseURL != "" && b.InternalToken != ""
}

func (b BackendConfig) QueryConfigured() bool {
	return b.RAGQueryURL != "" && b.APIKey != ""
}

func (b BackendConfig) FeedbackConfigured() bool {
	return b.FeedbackURL() != "" && b.APIKey != "" && b.InternalToken != ""
}

// ClaimMintURL is the claim-token minting endpoint under the claim base URL.
func (b BackendConfig) ClaimMintURL() string {
	if b.ClaimBaseURL == "" {
		return ""
	}
	return strings.TrimRight(b.ClaimBaseURL, "/") + claimMintPath
}

// FeedbackURL returns RAG_FEEDBACK_URL, or the query URL with its last path
// segment replaced by RAG_FEEDBACK_PATH.
func (b BackendConfig) FeedbackURL() string {
	if b.RAGFeedbackURL != "" {
		return b.RAGFeedbackURL
	}
	if b.RAGQueryURL == "" {
		return ""
	}
	u, err := url.Parse(b.RAGQueryURL)
	if err != nil || u.Host == "" {
		return ""
	}
	segment := strings.Trim(b.RAGFeedbackPath, "/")
	if segment == "" {
		segment = "rag-feedback"
	}
	p := strings.TrimRight(u.Path, "/")
	u.Path = p[:strings.LastIndex(p, "/")+1] + segment
	u.RawPath = ""
	return u.String()
}
