package auth

import (
	"errors"

	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/user"
	"github.com/gofiber/fiber/v2"
)

var (
	// ErrUnauthorized covers missing, malformed, expired or foreign tokens
	// and failed refreshes. Clients react by refreshing once, then logging out.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is a valid token presented on the wrong surface. Refreshing
	// cannot fix it.
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is deactivated")
	// ErrRefreshConflict is a refresh token that another request rotated a
	// moment ago. The cookie already holds its successor, so retrying works.
	ErrRefreshConflict = errors.New("refresh token was just rotated")
)

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return response.Unauthorized(c, "Invalid email or password")
	case errors.Is(err, errInvalidGoogleToken):
		return response.Unauthorized(c, "Invalid Google credentials")
	case errors.Is(err, ErrUnauthorized):
		return response.Unauthorized(c, "Session expired, please log in again")
	case errors.Is(err, ErrRefreshConflict):
		return response.Error(c, fiber.StatusConflict, "REFRESH_CONFLICT", "Session was refreshed by another request, retry", nil)
	case errors.Is(err, ErrAccountDisabled):
		return response.Forbidden(c, "Account is deactivated")
	case errors.Is(err, ErrForbidden):
		return response.Forbidden(c, "You don't have permission to access this resource")
	case errors.Is(err, otp.ErrExpiredOrInvalid):
		return response.ValidationError(c, map[string]string{
			"otp": "invalid or expired code",
		})
	case errors.Is(err, user.ErrEmailTaken):
		return response.Conflict(c, "Email already registered")
	case errors.Is(err, user.ErrNotFound):
		return response.NotFound(c, "Account")
	default:
		return response.InternalError(c, "Something went wrong, please try again")
	}
}
