package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOIDCProviderRequiresFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  OIDCConfig
		want string
	}{
		{name: "name", cfg: OIDCConfig{}, want: "name is required"},
		{name: "issuer", cfg: OIDCConfig{Name: "google"}, want: "issuer is required"},
		{name: "client id", cfg: OIDCConfig{Name: "google", Issuer: "https://issuer"}, want: "client id is required"},
		{name: "client secret", cfg: OIDCConfig{Name: "google", Issuer: "https://issuer", ClientID: "abc"}, want: "client secret is required"},
		{name: "redirect url", cfg: OIDCConfig{Name: "google", Issuer: "https://issuer", ClientID: "abc", ClientSecret: "s"}, want: "redirect url is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOIDCProvider(tc.cfg, OIDCOptions{})
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestOIDCProviderBeginBuildsPKCERedirect(t *testing.T) {
	var server *httptest.Server
	discoveries := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			discoveries++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"issuer":                 server.URL,
				"authorization_endpoint": server.URL + "/auth",
				"token_endpoint":         server.URL + "/token",
				"jwks_uri":               server.URL + "/jwks",
			})
		case "/jwks":
			_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	provider, err := NewOIDCProvider(OIDCConfig{
		Name:         "Google",
		Issuer:       server.URL,
		ClientID:     "client-123",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/api/v1/auth/oauth/google/callback",
	}, OIDCOptions{HTTPClient: server.Client(), Timeout: time.Second})
	require.NoError(t, err)

	meta := provider.Metadata()
	require.Equal(t, "google", meta.Name)
	require.Equal(t, "Google", meta.DisplayName)
	require.Equal(t, "redirect", meta.Flow)

	_, err = provider.Begin(context.Background(), BeginAuthRequest{State: "state"})
	require.Error(t, err)

	resp, err := provider.Begin(context.Background(), BeginAuthRequest{
		State:         "state-1",
		Nonce:         "nonce-1",
		PKCEChallenge: "challenge",
	})
	require.NoError(t, err)

	redirect, err := url.Parse(resp.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "/auth", redirect.Path)
	query := redirect.Query()
	require.Equal(t, "client-123", query.Get("client_id"))
	require.Equal(t, "state-1", query.Get("state"))
	require.Equal(t, "nonce-1", query.Get("nonce"))
	require.Equal(t, "challenge", query.Get("code_challenge"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Equal(t, "openid email profile", query.Get("scope"))

	_, err = provider.Begin(context.Background(), BeginAuthRequest{State: "s2", Nonce: "n2", PKCEChallenge: "c2"})
	require.NoError(t, err)
	require.Equal(t, 1, discoveries)
}

func TestOIDCCallbackRejectsProviderErrors(t *testing.T) {
	provider, err := NewOIDCProvider(OIDCConfig{
		Name:         "microsoft",
		Issuer:       "https://login.example.com",
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/cb",
	}, OIDCOptions{})
	require.NoError(t, err)

	_, err = provider.Callback(context.Background(), CallbackRequest{Error: "access_denied"})
	require.ErrorContains(t, err, "access_denied")

	_, err = provider.Callback(context.Background(), CallbackRequest{PKCEVerifier: "v"})
	require.ErrorContains(t, err, "authorization code missing")
}

func TestIdentityFromClaimsFallsBackToPreferredUsername(t *testing.T) {
	identity := identityFromClaims("microsoft", "sub-1", map[string]any{
		"preferred_username": "Ada@Contoso.com",
		"given_name":         "Ada",
		"family_name":        "Lovelace",
		"email_verified":     "true",
	})
	require.Equal(t, "ada@contoso.com", identity.Email)
	require.Equal(t, "Ada", identity.FirstName)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "microsoft", identity.Provider)
}
