package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://crm.example.com/api/v1/email-accounts/callback",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.modify"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}
}

func TestAuthorizationURL(t *testing.T) {
	tm := NewTokenManagerWithConfig(testOAuthConfig())

	raw := tm.AuthorizationURL("state-abc123")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "state-abc123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))

	// Offline access and forced consent: without both, the provider may
	// withhold the refresh token on repeat authorization.
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "force", q.Get("approval_prompt"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "access-123",
			"refresh_token": "refresh-456",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer srv.Close()

	conf := testOAuthConfig()
	conf.Endpoint.TokenURL = srv.URL
	tm := NewTokenManagerWithConfig(conf)

	pair, err := tm.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "access-123", pair.AccessToken)
	assert.Equal(t, "refresh-456", pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), pair.ExpiresAt, time.Minute)
}

func TestExchangeCodeMissingRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "access-123", "token_type": "Bearer"}`))
	}))
	defer srv.Close()

	conf := testOAuthConfig()
	conf.Endpoint.TokenURL = srv.URL
	tm := NewTokenManagerWithConfig(conf)

	_, err := tm.ExchangeCode(context.Background(), "auth-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token")
}

func TestRevoke(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotToken = r.FormValue("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tm := NewTokenManagerWithConfig(testOAuthConfig())
	tm.revokeURL = srv.URL

	tm.Revoke(context.Background(), "refresh-456")
	assert.Equal(t, "refresh-456", gotToken)
}

func TestRevokeBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tm := NewTokenManagerWithConfig(testOAuthConfig())

	// Rejected, unreachable and empty tokens all return without panicking
	tm.revokeURL = srv.URL
	tm.Revoke(context.Background(), "already-revoked")

	tm.revokeURL = "http://127.0.0.1:1/revoke"
	tm.Revoke(context.Background(), "refresh-456")

	tm.Revoke(context.Background(), "")
}
