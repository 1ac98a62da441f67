package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"

	"globcrm/config"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// TokenPair is the result of a one-shot authorization code exchange
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// TokenManager handles the Google OAuth token lifecycle for mailbox
// accounts: authorization URLs, code exchange, and revocation on disconnect.
type TokenManager struct {
	conf      *oauth2.Config
	revokeURL string
	client    *http.Client
}

// NewTokenManager builds a token manager from the loaded application config
func NewTokenManager() *TokenManager {
	return NewTokenManagerWithConfig(&oauth2.Config{
		ClientID:     config.AppConfig.Google.ClientID,
		ClientSecret: config.AppConfig.Google.ClientSecret,
		RedirectURL:  config.AppConfig.Google.RedirectURI,
		// Minimum scope that can both read the mailbox and flip read state
		Scopes:   []string{gmail.GmailModifyScope},
		Endpoint: google.Endpoint,
	})
}

// NewTokenManagerWithConfig builds a token manager around an explicit OAuth
// config. Used by tests to point at a fake provider.
func NewTokenManagerWithConfig(conf *oauth2.Config) *TokenManager {
	return &TokenManager{
		conf:      conf,
		revokeURL: googleRevokeURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthorizationURL builds the provider consent URL. Offline access and
// forced consent are both required: Google omits the refresh token on repeat
// consent unless approval is forced, and a refresh token is mandatory for
// background sync. The caller supplies and later validates the CSRF state.
func (tm *TokenManager) AuthorizationURL(state string) string {
	return tm.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode swaps an authorization code for a token pair. Must be called
// with the exact redirect URI the code was issued for.
func (tm *TokenManager) ExchangeCode(ctx context.Context, code string) (*TokenPair, error) {
	token, err := tm.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("provider did not return a refresh token")
	}

	return &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IssuedAt:     time.Now(),
		ExpiresAt:    token.Expiry,
	}, nil
}

// Revoke invalidates a refresh token at the provider. Best-effort: a failed
// revocation is logged and swallowed so that disconnect always succeeds
// locally.
func (tm *TokenManager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	form := url.Values{"token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		logrus.WithError(err).Warn("failed to build token revocation request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.client.Do(req)
	if err != nil {
		logrus.WithError(err).Warn("token revocation request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithField("status", resp.StatusCode).Warn("provider rejected token revocation")
	}
}

// OAuthConfig exposes the underlying OAuth2 config for client construction
func (tm *TokenManager) OAuthConfig() *oauth2.Config {
	return tm.conf
}
