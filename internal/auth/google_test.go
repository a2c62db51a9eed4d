package auth_test

import (
	"testing"

	"github.com/Kyz7/chainverse/internal/auth"
	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleIDTokenHandler(t *testing.T) {
	ta := testutils.SetupTestApp(t)
	ta.Google["good-token"] = &auth.GoogleProfile{Email: "gmail@chainverse.io", Name: "G User", EmailVerified: true}
	ta.Google["unverified-token"] = &auth.GoogleProfile{Email: "shady@chainverse.io", Name: "Shady", EmailVerified: false}

	t.Run("Success - First sign-in creates the user", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/google", map[string]interface{}{
			"idToken": "good-token",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.Code, resp.Body.String())

		var result testutils.SessionResponse
		testutils.ParseResponse(t, resp, &result)
		assert.NotEmpty(t, result.AccessToken)
		assert.Equal(t, "google", result.User["provider"])
		assert.NotNil(t, testutils.ResponseCookie(resp, role.User.CookieName()))

		var identity models.Identity
		require.NoError(t, ta.DB.Where("email = ? AND surface = ?", "gmail@chainverse.io", role.User).First(&identity).Error)
		assert.True(t, identity.Verified)
		assert.Empty(t, identity.Password)
	})

	t.Run("Success - Second sign-in reuses the account", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/google", map[string]interface{}{
			"idToken": "good-token",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.Code)

		var count int64
		ta.DB.Model(&models.Identity{}).Where("email = ?", "gmail@chainverse.io").Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Error - Google account cannot password-login", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/login", map[string]interface{}{
			"email":    "gmail@chainverse.io",
			"password": "anything",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})

	t.Run("Error - Unverified Google email", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/google", map[string]interface{}{
			"idToken": "unverified-token",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
	})

	t.Run("Error - Invalid token", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "POST", "/api/user/google", map[string]interface{}{
			"idToken": "forged",
		}, "")
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.Code)
		testutils.AssertError(t, resp, "UNAUTHORIZED")
	})

	t.Run("Error - Code flow not configured", func(t *testing.T) {
		resp, err := testutils.MakeRequest(ta.App, "GET", "/api/user/google/login", nil, "")
		assert.NoError(t, err)
		assert.Equal(t, 503, resp.Code)
	})
}
