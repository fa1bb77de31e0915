package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.TurnTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 0, cfg.Backend.MaxRetries)
	assert.Equal(t, "teams", cfg.Backend.Source)
	assert.Equal(t, AnswerFormatCard, cfg.Render.AnswerFormat)
	assert.Equal(t, PlaceholderReplace, cfg.Render.PlaceholderMode)
	assert.Equal(t, 1.0, cfg.Teams.SendRate)
	assert.Equal(t, 7, cfg.Teams.SendBurst)
	assert.False(t, cfg.Teams.AuthEnabled())
	assert.False(t, cfg.Backend.QueryConfigured())
	assert.False(t, cfg.Backend.ClaimConfigured())
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("TEAMS_TENANT_LOOKUP_URL", "https://backend.example/functions/v1/teams-tenant-lookup")
	t.Setenv("RAG_QUERY_URL", "https://backend.example/functions/v1/rag-query")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("INTERNAL_LOOKUP_SECRET", "secret")
	t.Setenv("SUPABASE_URL", "https://backend.example/")
	t.Setenv("PLACEHOLDER_MODE", "Append")
	t.Setenv("BACKEND_TIMEOUT", "3s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, PlaceholderAppend, cfg.Render.PlaceholderMode)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.True(t, cfg.Backend.TenantLookupConfigured())
	assert.True(t, cfg.Backend.QueryConfigured())
	assert.True(t, cfg.Backend.ClaimConfigured())
	assert.True(t, cfg.Backend.FeedbackConfigured())
	assert.Equal(t, "https://backend.example/functions/v1/mint-teams-claim-token", cfg.Backend.ClaimMintURL())
}

func TestLoad_LegacyBotFrameworkNames(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MicrosoftAppId", "app-id")
	t.Setenv("MicrosoftAppPassword", "app-secret")
	t.Setenv("MicrosoftAppType", "SingleTenant")
	t.Setenv("MicrosoftAppTenantId", "aad-tenant")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "app-id", cfg.Teams.AppID)
	assert.Equal(t, "app-secret", cfg.Teams.AppPassword)
	assert.True(t, cfg.Teams.AuthEnabled())
	assert.Equal(t, "aad-tenant", cfg.Teams.TokenTenant())
	assert.Equal(t, "https://login.microsoftonline.com/aad-tenant/oauth2/v2.0/token", cfg.Teams.TokenURL())
}

func TestLoad_UppercaseNamesWinOverLegacy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MICROSOFT_APP_ID", "new-id")
	t.Setenv("MicrosoftAppId", "old-id")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "new-id", cfg.Teams.AppID)
}

func TestLoad_RejectsUnknownModes(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "ANSWER_FORMAT", value: "html"},
		{key: "PLACEHOLDER_MODE", value: "edit"},
		{key: "GIN_MODE", value: "prod"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_NormalizesGinMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GIN_MODE", " Debug ")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.GinMode)
}

func TestTokenTenant_MultiTenantUsesBotFramework(t *testing.T) {
	tc := TeamsConfig{AppType: "MultiTenant", AppTenantID: "ignored", LoginBase: "https://login.example"}
	assert.Equal(t, DefaultBotFrameworkTenant, tc.TokenTenant())
	assert.Equal(t, "https://login.example/botframework.com/oauth2/v2.0/token", tc.TokenURL())
}

func TestFeedbackURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackendConfig
		want string
	}{
		{
			name: "derived from query url",
			cfg:  BackendConfig{RAGQueryURL: "https://x.example/functions/v1/rag-query", RAGFeedbackPath: "rag-feedback"},
			want: "https://x.example/functions/v1/rag-feedback",
		},
		{
			name: "trailing slash on query url",
			cfg:  BackendConfig{RAGQueryURL: "https://x.example/functions/v1/rag-query/", RAGFeedbackPath: "/qa-feedback/"},
			want: "https://x.example/functions/v1/qa-feedback",
		},
		{
			name: "explicit url wins",
			cfg:  BackendConfig{RAGQueryURL: "https://x.example/q", RAGFeedbackURL: "https://y.example/fb"},
			want: "https://y.example/fb",
		},
		{
			name: "no query url",
			cfg:  BackendConfig{RAGFeedbackPath: "rag-feedback"},
			want: "",
		},
		{
			name: "query url without host",
			cfg:  BackendConfig{RAGQueryURL: "rag-query", RAGFeedbackPath: "rag-feedback"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.FeedbackURL())
		})
	}
}

func TestDiagnostics_NeverLeaksSecrets(t *testing.T) {
	cfg := Config{
		Teams:   TeamsConfig{AppID: "id", AppPassword: "p4ss"},
		Backend: BackendConfig{APIKey: "k3y", InternalToken: "t0ken"},
	}
	for k, v := range cfg.Diagnostics() {
		assert.NotEqual(t, "p4ss", v, k)
		assert.NotEqual(t, "k3y", v, k)
		assert.NotEqual(t, "t0ken", v, k)
	}
	assert.Equal(t, true, cfg.Diagnostics()["hasAppPassword"])
}
