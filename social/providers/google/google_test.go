package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugloop/identity/social"
	"github.com/bugloop/identity/social/providers/google"
)

func newTestProvider(t *testing.T, handler http.Handler) *google.Provider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return google.New(google.Config{
		ClientID:     "goog-client",
		ClientSecret: "goog-secret",
		CallbackURL:  "https://identity.bugloop.dev/auth/google/callback",
		AuthURL:      server.URL + "/o/oauth2/v2/auth",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/v1/userinfo",
		HTTPClient:   server.Client(),
	})
}

func TestAuthCodeURL(t *testing.T) {
	provider := google.New(google.Config{
		ClientID:    "goog-client",
		CallbackURL: "https://identity.bugloop.dev/auth/google/callback",
	})

	parsed, err := url.Parse(provider.AuthCodeURL("state-token"))
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "goog-client", query.Get("client_id"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "openid email profile", query.Get("scope"))
	assert.Equal(t, "state-token", query.Get("state"))
}

func TestExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "auth-code", r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "goog-access-token",
			"token_type":    "Bearer",
			"refresh_token": "goog-refresh-token",
			"expires_in":    3600,
			"scope":         "openid email profile",
		})
	})

	provider := newTestProvider(t, mux)

	token, err := provider.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "goog-access-token", token.AccessToken)
	assert.Equal(t, "goog-refresh-token", token.RefreshToken)
	assert.Equal(t, []string{"openid", "email", "profile"}, token.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
}

func TestExchangeErrorPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	})

	provider := newTestProvider(t, mux)

	_, err := provider.Exchange(context.Background(), "redeemed-code")
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "google", perr.Provider)
	assert.Equal(t, "invalid_grant", perr.Code)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
}

func TestUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer goog-access-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sub":            "108976543210",
			"email":          "pepe.rone@example.com",
			"email_verified": true,
			"name":           "Pepe Rone",
			"given_name":     "Pepe",
			"family_name":    "Rone",
			"picture":        "https://lh3.example.com/photo",
		})
	})

	provider := newTestProvider(t, mux)

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "goog-access-token"})
	require.NoError(t, err)

	assert.Equal(t, "108976543210", profile.ProviderUserID)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "pepe.rone@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Pepe", profile.FirstName)
	assert.Equal(t, "Rone", profile.LastName)
	assert.Equal(t, "https://lh3.example.com/photo", profile.AvatarURL)
}

func TestUserInfoFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	provider := newTestProvider(t, mux)

	_, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "revoked"})
	require.Error(t, err)

	var perr *social.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "user_info", perr.Operation)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
}
