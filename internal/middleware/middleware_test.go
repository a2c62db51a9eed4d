package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kyz7/chainverse/internal/role"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func bindApp() *fiber.App {
	app := fiber.New()
	app.Post("/bind", func(c *fiber.Ctx) error {
		var body signupBody
		if ok, err := BindBody(c, &body); !ok {
			return err
		}
		return c.JSON(body)
	})
	return app
}

func post(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/bind", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestBindBody(t *testing.T) {
	app := bindApp()

	t.Run("Valid body", func(t *testing.T) {
		code, out := post(t, app, `{"email":"a@chainverse.io","otp":"012345"}`)
		assert.Equal(t, 200, code)
		assert.Equal(t, "012345", out["otp"])
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		code, out := post(t, app, `{"email":`)
		assert.Equal(t, 400, code)
		assert.Equal(t, "BAD_REQUEST", out["error"].(map[string]interface{})["code"])
	})

	t.Run("Field errors use JSON names", func(t *testing.T) {
		code, out := post(t, app, `{"email":"nope","otp":"12ab"}`)
		assert.Equal(t, 422, code)

		details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
		assert.Equal(t, "email must be a valid email", details["email"])
		assert.Equal(t, "otp must be exactly 6 characters", details["otp"])
	})
}

func TestPrincipal(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if _, ok := CurrentPrincipal(c); ok {
			return c.SendStatus(500)
		}
		SetPrincipal(c, &Principal{IdentityID: 7, Surface: role.Admin})
		p, ok := CurrentPrincipal(c)
		if !ok || p.IdentityID != 7 || p.Surface != role.Admin {
			return c.SendStatus(500)
		}
		return c.SendStatus(200)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
