package auth_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, ta *testutils.TestApp, surface role.Surface, email, password string) (testutils.SessionResponse, *http.Cookie) {
	t.Helper()

	resp, err := testutils.MakeRequest(ta.App, "POST", surface.LoginPath(), map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	require.NoError(t, err)
	require.Equal(t, 200, resp.Code, resp.Body.String())

	var result testutils.SessionResponse
	testutils.ParseResponse(t, resp, &result)
	cookie := testutils.ResponseCookie(resp, surface.CookieName())
	require.NotNil(t, cookie, "login must set the refresh cookie")

	return result, cookie
}

func TestLoginHandler(t *testing.T) {
	ta := testutils.SetupTestApp(t)

	for _, surface := range role.Surfaces() {
		testutils.CreateIdentity(t, ta.DB, surface, string(surface)+"@chainverse.io", "password123")
	}

	for _, surface := range role.Surfaces() {
		surface := surface
		t.Run("Success - "+string(surface), func(t *testing.T) {
			resp, err := testutils.MakeRequest(ta.App, "POST", surface.LoginPath(), map[string]interface{}{
				"email":    string(surface) + "@chainverse.io",
				"password": "password123",
			}, "")
			assert.NoError(t, err)
			assert.Equal(t, 200, resp.Code)

			var result map[string]interface{}
			testutils.ParseResponse(t, resp, &result)
			assert.Equal(t, true, result["success"])
			assert.NotEmpty(t, result["accessToken"])
			assert.Equal(t, float64(900), result["expiresIn"])

			account, ok := result[surface.AccountKey()].(map[string]interface{})
			if assert.True(t, ok, "identity returned under %q", surface.AccountKey()) {
				assert.Equal(t, string(surface)+"@chainverse.io", account["email"])
				assert.NotContains(t, account, "password")
			}

			cookie := testutils.ResponseCookie(resp, surface.CookieName())
			if assert.NotNil(t, cookie) {
				assert.NotEmpty(t, cookie.Value)
				assert.True(t, cookie.HttpOnly)
				assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
				assert.Equal(t, surface.RefreshPath(), cookie.Path)
				assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
			}

			claims, err := ta.Issuer.VerifyAccess(result["accessToken"].(string), surface)
			assert.NoError(t, err)
			assert.Equal(t, surface, claims.Role)
		})
	}

	t.Run("Error - Wrong password", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/login", map[string]interface{}{
			"email":    "user@chainverse.io",
			"password": "wrongpassword",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		assert.Nil(t, testutils.ResponseCookie(resp, role.User.CookieName()))
	})

	t.Run("Error - Credentials of another surface", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/admin/login", map[string]interface{}{
			"email":    "user@chainverse.io",
			"password": "password123",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "UNAUTHORIZED")
	})

	t.Run("Error - Unknown email", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/login", map[string]interface{}{
			"email":    "nobody@chainverse.io",
			"password": "password123",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})

	t.Run("Error - Missing fields", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/login", map[string]interface{}{
			"email": "user@chainverse.io",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 422, resp.Code)
		testutils.AssertError(t, resp, "VALIDATION_ERROR")
	})

	t.Run("Error - Deactivated account", func(t *testing.T) {
		disabled := testutils.CreateIdentity(t, ta.DB, role.User, "disabled@chainverse.io", "password123")
		require.NoError(t, ta.DB.Model(disabled).Update("active", false).Error)

		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/login", map[string]interface{}{
			"email":    "disabled@chainverse.io",
			"password": "password123",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 403, resp.Code)
		testutils.AssertError(t, resp, "FORBIDDEN")
	})
}

func TestTokenRoleIsolation(t *testing.T) {
	ta := testutils.SetupTestApp(t)

	identities := map[role.Surface]*models.Identity{}
	for _, surface := range role.Surfaces() {
		identities[surface] = testutils.CreateIdentity(t, ta.DB, surface, "same@chainverse.io", "password123")
	}

	for _, minted := range role.Surfaces() {
		for _, route := range role.Surfaces() {
			minted, route := minted, route
			name := fmt.Sprintf("%s token on %s route", minted, route)
			t.Run(name, func(t *testing.T) {
				token := testutils.GetAuthToken(t, ta.Issuer, identities[minted])

				resp, err := testutils.MakeRequest(ta.App, "GET", route.Prefix()+"/me", nil, token)
				assert.NoError(t, err)

				if minted == route {
					assert.Equal(t, 200, resp.Code)
					return
				}
				assert.Equal(t, 403, resp.Code)
				testutils.AssertError(t, resp, "FORBIDDEN")
			})
		}
	}

	t.Run("User token on admin-only route", func(t *testing.T) {
		token := testutils.GetAuthToken(t, ta.Issuer, identities[role.User])
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/admin/users", nil, token)
		assert.NoError(t, err)
		assert.Equal(t, 403, resp.Code)
	})

	t.Run("Refresh token used as bearer", func(t *testing.T) {
		pair, err := ta.Issuer.IssueTokens(identities[role.User].ID, role.User)
		require.NoError(t, err)

		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, pair.RefreshToken)
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "INVALID_TOKEN")
	})
}

func TestJWTProtected(t *testing.T) {
	ta := testutils.SetupTestApp(t)
	u := testutils.CreateIdentity(t, ta.DB, role.User, "user@chainverse.io", "password123")

	t.Run("Error - Missing token", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "UNAUTHORIZED")
	})

	t.Run("Error - Invalid format", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, "two parts")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "INVALID_TOKEN_FORMAT")
	})

	t.Run("Error - Garbage token", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, "not.a.jwt")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "INVALID_TOKEN")
	})

	t.Run("Error - Identity no longer exists", func(t *testing.T) {
		token, _, err := ta.Issuer.IssueAccess(9999, role.User)
		require.NoError(t, err)

		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, token)
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})

	t.Run("Error - Deactivated identity", func(t *testing.T) {
		disabled := testutils.CreateIdentity(t, ta.DB, role.User, "gone@chainverse.io", "password123")
		token := testutils.GetAuthToken(t, ta.Issuer, disabled)
		require.NoError(t, ta.DB.Model(disabled).Update("active", false).Error)

		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, token)
		assert.NoError(t, err)
		assert.Equal(t, 403, resp.Code)
	})

	t.Run("Success - Profile of the caller", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, testutils.GetAuthToken(t, ta.Issuer, u))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.Code)

		var result testutils.StandardResponse
		testutils.ParseResponse(t, resp, &result)
		data := result.Data.(map[string]interface{})
		assert.Equal(t, "user@chainverse.io", data["email"])
	})
}

func TestAccessTokenLifetimeBoundary(t *testing.T) {
	ta := testutils.SetupTestApp(t)
	u := testutils.CreateIdentity(t, ta.DB, role.User, "user@chainverse.io", "password123")

	token := testutils.GetAuthToken(t, ta.Issuer, u)

	ta.Clock.Advance(15*time.Minute - time.Second)
	resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, token)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.Code, "one second before expiry")

	ta.Clock.Advance(time.Second)
	resp, err = testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, token)
	assert.NoError(t, err)
	assert.Equal(t, 401, resp.Code, "exactly at expiry")

	ta.Clock.Advance(time.Hour)
	resp, err = testutils.MakeRequest(ta.App, "GET", "/api/user/me", nil, token)
	assert.NoError(t, err)
	assert.Equal(t, 401, resp.Code, "after expiry")
}

func TestLogoutHandler(t *testing.T) {
	ta := testutils.SetupTestApp(t)
	testutils.CreateIdentity(t, ta.DB, role.CommunityAdmin, "mod@chainverse.io", "password123")

	session, cookie := login(t, ta, role.CommunityAdmin, "mod@chainverse.io", "password123")

	t.Run("Error - Not authenticated", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/community-admin/logout", nil, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})

	t.Run("Success - Revokes refresh tokens and clears cookie", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/community-admin/logout", nil, session.AccessToken)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.Code)

		cleared := testutils.ResponseCookie(resp, role.CommunityAdmin.CookieName())
		if assert.NotNil(t, cleared) {
			assert.Empty(t, cleared.Value)
			assert.Equal(t, role.CommunityAdmin.RefreshPath(), cleared.Path)
		}

		resp, err = testutils.MakeRequestWithCookies(ta.App, "POST", role.CommunityAdmin.RefreshPath(), nil, "", cookie)
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})
}
