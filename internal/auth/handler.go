package auth

import (
	"errors"
	"log"
	"strings"

	"github.com/Kyz7/chainverse/internal/middleware"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc         *Service
	cookies     CookieConfig
	google      GoogleVerifier
	oauth       *GoogleOAuth
	frontendURL string
}

// NewHandler wires the HTTP surface of the auth service. google and oauth may
// be nil when Google sign-in is not configured.
func NewHandler(svc *Service, cookies CookieConfig, google GoogleVerifier, oauth *GoogleOAuth, frontendURL string) *Handler {
	return &Handler{
		svc:         svc,
		cookies:     cookies,
		google:      google,
		oauth:       oauth,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (h *Handler) LoginHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Email    string `json:"email" validate:"required,email"`
			Password string `json:"password" validate:"required"`
		}
		if ok, err := middleware.BindBody(c, &body); !ok {
			return err
		}

		session, err := h.svc.Login(c.UserContext(), surface, body.Email, body.Password)
		if err != nil {
			return writeError(c, err)
		}

		return h.writeSession(c, fiber.StatusOK, surface, session, "Login successful")
	}
}

// RefreshHandler reads only the refresh cookie of its own surface. Any
// failure clears that cookie so the browser stops presenting it.
func (h *Handler) RefreshHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := h.svc.Refresh(c.UserContext(), surface, c.Cookies(surface.CookieName()))
		if errors.Is(err, ErrUnauthorized) {
			h.cookies.clearRefresh(c, surface)
			return response.Unauthorized(c, "Session expired, please log in again")
		}
		if err != nil {
			return writeError(c, err)
		}

		h.cookies.setRefresh(c, surface, session.Tokens.RefreshToken, session.Tokens.RefreshExpiresAt, h.svc.RefreshTTL())
		return response.Session(c, fiber.StatusOK, "Token refreshed successfully", session.Tokens.AccessToken, fiber.Map{
			"expiresIn": int(h.svc.AccessTTL().Seconds()),
		})
	}
}

func (h *Handler) LogoutHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := middleware.CurrentPrincipal(c)
		if !ok {
			return response.Unauthorized(c, "Not authenticated")
		}

		if err := h.svc.Logout(c.UserContext(), surface, p.IdentityID); err != nil {
			return writeError(c, err)
		}

		h.cookies.clearRefresh(c, surface)
		log.Printf("🚪 %s %d logged out", surface, p.IdentityID)
		return response.Success(c, nil, "Logout successful")
	}
}

func (h *Handler) RequestRegistrationOTPHandler(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email" validate:"required,email"`
	}
	if ok, err := middleware.BindBody(c, &body); !ok {
		return err
	}

	if err := h.svc.RequestRegistrationOTP(c.UserContext(), body.Email); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, nil, "Verification code sent")
}

func (h *Handler) VerifyRegistrationOTPHandler(c *fiber.Ctx) error {
	var body struct {
		Name     string `json:"name" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=72"`
		OTP      string `json:"otp" validate:"required,len=6,numeric"`
	}
	if ok, err := middleware.BindBody(c, &body); !ok {
		return err
	}

	session, err := h.svc.Register(c.UserContext(), body.Name, body.Email, body.Password, body.OTP)
	if err != nil {
		return writeError(c, err)
	}

	return h.writeSession(c, fiber.StatusCreated, role.User, session, "Registration successful")
}

// ForgotPasswordHandler answers the same way whether or not the account
// exists.
func (h *Handler) ForgotPasswordHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Email string `json:"email" validate:"required,email"`
		}
		if ok, err := middleware.BindBody(c, &body); !ok {
			return err
		}

		if err := h.svc.ForgotPassword(c.UserContext(), surface, body.Email); err != nil {
			log.Printf("⚠️  Password reset request for %s failed: %v", surface, err)
		}
		return response.Success(c, nil, "If the account exists, a reset code has been sent")
	}
}

func (h *Handler) ResetPasswordHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Email       string `json:"email" validate:"required,email"`
			OTP         string `json:"otp" validate:"required,len=6,numeric"`
			NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
		}
		if ok, err := middleware.BindBody(c, &body); !ok {
			return err
		}

		if err := h.svc.ResetPassword(c.UserContext(), surface, body.Email, body.OTP, body.NewPassword); err != nil {
			return writeError(c, err)
		}

		h.cookies.clearRefresh(c, surface)
		return response.Success(c, nil, "Password reset successful")
	}
}

// GoogleIDTokenHandler signs a user in with an ID token obtained by the
// frontend's Google button.
func (h *Handler) GoogleIDTokenHandler(c *fiber.Ctx) error {
	if h.google == nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "NOT_CONFIGURED", "Google sign-in is not configured", nil)
	}

	var body struct {
		IDToken string `json:"idToken" validate:"required"`
	}
	if ok, err := middleware.BindBody(c, &body); !ok {
		return err
	}

	profile, err := h.google.Verify(c.UserContext(), body.IDToken)
	if err != nil {
		log.Printf("⚠️  Google token rejected: %v", err)
		return response.Unauthorized(c, "Invalid Google credentials")
	}

	session, err := h.svc.SignInWithGoogle(c.UserContext(), profile)
	if err != nil {
		return writeError(c, err)
	}

	return h.writeSession(c, fiber.StatusOK, role.User, session, "Login successful")
}

func (h *Handler) GoogleLoginHandler(c *fiber.Ctx) error {
	if h.oauth == nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "NOT_CONFIGURED", "Google sign-in is not configured", nil)
	}

	url, err := h.oauth.AuthCodeURL()
	if err != nil {
		return response.InternalError(c, "Failed to start Google sign-in")
	}
	return c.Redirect(url)
}

// GoogleCallbackHandler finishes the code flow. The refresh cookie is set and
// the browser is sent back to the frontend, which obtains its access token
// from the refresh endpoint.
func (h *Handler) GoogleCallbackHandler(c *fiber.Ctx) error {
	if h.oauth == nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "NOT_CONFIGURED", "Google sign-in is not configured", nil)
	}

	profile, err := h.oauth.Exchange(c.UserContext(), c.Query("state"), c.Query("code"))
	if err != nil {
		log.Printf("⚠️  Google callback failed: %v", err)
		if errors.Is(err, errInvalidGoogleToken) {
			return response.BadRequest(c, "Invalid Google sign-in response", nil)
		}
		return response.InternalError(c, "Failed to get user info")
	}

	session, err := h.svc.SignInWithGoogle(c.UserContext(), profile)
	if err != nil {
		return writeError(c, err)
	}

	h.cookies.setRefresh(c, role.User, session.Tokens.RefreshToken, session.Tokens.RefreshExpiresAt, h.svc.RefreshTTL())
	return c.Redirect(h.frontendURL + "/")
}

func (h *Handler) writeSession(c *fiber.Ctx, status int, surface role.Surface, session *Session, message string) error {
	h.cookies.setRefresh(c, surface, session.Tokens.RefreshToken, session.Tokens.RefreshExpiresAt, h.svc.RefreshTTL())
	return response.Session(c, status, message, session.Tokens.AccessToken, fiber.Map{
		surface.AccountKey(): session.Identity,
		"expiresIn":          int(h.svc.AccessTTL().Seconds()),
	})
}
