package auth

import (
	"errors"
	"strings"

	"github.com/Kyz7/chainverse/internal/middleware"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/user"
	"github.com/Kyz7/chainverse/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type Guard struct {
	issuer *utils.TokenIssuer
	users  *user.Service
}

func NewGuard(issuer *utils.TokenIssuer, users *user.Service) *Guard {
	return &Guard{issuer: issuer, users: users}
}

// JWTProtected admits requests carrying a valid access token of the given
// surface. A token that is valid for another surface gets 403, anything else
// that does not verify gets 401.
func (g *Guard) JWTProtected(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || tokenParts[1] == "" {
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN_FORMAT", "Invalid token format", nil)
		}

		claims, err := g.issuer.VerifyAccess(tokenParts[1], surface)
		if err != nil {
			if other, ok := g.issuer.AccessSurfaceOf(tokenParts[1]); ok && other != surface {
				return response.Forbidden(c, "You don't have permission to access this resource")
			}
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", nil)
		}

		identityID, _ := claims.IdentityID()
		identity, err := g.users.FindByID(c.UserContext(), surface, identityID)
		if errors.Is(err, user.ErrNotFound) {
			return response.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Account no longer exists", nil)
		}
		if err != nil {
			return response.InternalError(c, "Credential store unavailable")
		}
		if !identity.Active {
			return response.Forbidden(c, "Account is deactivated")
		}

		middleware.SetPrincipal(c, &middleware.Principal{
			IdentityID: identity.ID,
			Surface:    surface,
			Identity:   identity,
		})
		return c.Next()
	}
}
