package middleware

import (
	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/gofiber/fiber/v2"
)

const principalKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	IdentityID uint
	Surface    role.Surface
	Identity   *models.Identity
}

func SetPrincipal(c *fiber.Ctx, p *Principal) {
	c.Locals(principalKey, p)
}

func CurrentPrincipal(c *fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(principalKey).(*Principal)
	return p, ok && p != nil
}
