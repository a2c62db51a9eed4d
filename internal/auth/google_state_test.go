package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Kyz7/chainverse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGoogleOAuthState(t *testing.T) {
	g := NewGoogleOAuth(&config.Config{
		GoogleClientID:    "client-id",
		GoogleRedirectURL: "http://localhost:8080/api/user/google/callback",
	})

	authURL, err := g.AuthCodeURL()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	assert.NotEmpty(t, state)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))

	assert.True(t, g.validateState(state))
	assert.False(t, g.validateState(state), "states are single use")
	assert.False(t, g.validateState("never-issued"))
}

func TestGoogleOAuthExchangeRejectsUnknownState(t *testing.T) {
	g := NewGoogleOAuth(&config.Config{GoogleClientID: "client-id"})

	_, err := g.Exchange(context.Background(), "forged", "code")
	assert.ErrorIs(t, err, errInvalidGoogleToken)
}

func TestGoogleOAuthExchangeWithMockServer(t *testing.T) {
	mockGoogleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/token"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "mock-access-token",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case strings.Contains(r.URL.Path, "/userinfo"):
			if r.Header.Get("Authorization") != "Bearer mock-access-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"email":          "TestUser@Gmail.com",
				"name":           "Test User",
				"verified_email": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mockGoogleServer.Close()

	g := NewGoogleOAuth(&config.Config{GoogleClientID: "client-id", GoogleClientSecret: "secret"})
	g.config.Endpoint = oauth2.Endpoint{
		AuthURL:  mockGoogleServer.URL + "/auth",
		TokenURL: mockGoogleServer.URL + "/token",
	}
	g.userInfoURL = mockGoogleServer.URL + "/userinfo"

	authURL, err := g.AuthCodeURL()
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)

	profile, err := g.Exchange(context.Background(), u.Query().Get("state"), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "testuser@gmail.com", profile.Email)
	assert.Equal(t, "Test User", profile.Name)
	assert.True(t, profile.EmailVerified)
}
