package auth

import (
	"time"

	"github.com/Kyz7/chainverse/internal/role"
	"github.com/gofiber/fiber/v2"
)

// CookieConfig controls the refresh cookie. Secure is only switched off for
// plain-HTTP local development.
type CookieConfig struct {
	Secure bool
	Domain string
}

func (cc CookieConfig) setRefresh(c *fiber.Ctx, surface role.Surface, token string, expires time.Time, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     surface.CookieName(),
		Value:    token,
		Path:     surface.RefreshPath(),
		Domain:   cc.Domain,
		Expires:  expires,
		MaxAge:   int(ttl.Seconds()),
		Secure:   cc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (cc CookieConfig) clearRefresh(c *fiber.Ctx, surface role.Surface) {
	c.Cookie(&fiber.Cookie{
		Name:     surface.CookieName(),
		Value:    "",
		Path:     surface.RefreshPath(),
		Domain:   cc.Domain,
		Expires:  time.Unix(0, 0),
		Secure:   cc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
