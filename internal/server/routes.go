package server

import (
	"time"

	"github.com/Kyz7/chainverse/internal/auth"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/user"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func SetupRoutes(app *fiber.App, deps Deps) {
	cfg := deps.Config

	users := user.NewService(deps.DB)
	authSvc := auth.NewService(deps.DB, users, deps.Issuer, deps.OTPs, deps.Mailer)

	google := deps.Google
	var oauth *auth.GoogleOAuth
	if cfg.GoogleClientID != "" {
		if google == nil {
			google = auth.IDTokenVerifier{ClientID: cfg.GoogleClientID}
		}
		oauth = auth.NewGoogleOAuth(cfg)
	}

	authHandler := auth.NewHandler(authSvc, auth.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	}, google, oauth, cfg.FrontendURL)
	userHandler := user.NewHandler(users)
	guard := auth.NewGuard(deps.Issuer, users)

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS, PATCH",
		AllowCredentials: true,
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "ChainVerse API is running",
		})
	})

	// ==========================================
	// SESSION ROUTES (every surface)
	// ==========================================
	for _, surface := range role.Surfaces() {
		group := app.Group(surface.Prefix())
		protected := guard.JWTProtected(surface)

		group.Post("/login", rateLimit(cfg.LoginRateLimit, 15*time.Minute), authHandler.LoginHandler(surface))
		group.Post("/refresh-token", rateLimit(cfg.RefreshRateLimit, 5*time.Minute), authHandler.RefreshHandler(surface))
		group.Post("/logout", protected, authHandler.LogoutHandler(surface))
		group.Post("/forgot-password", rateLimit(cfg.OTPRateLimit, 15*time.Minute), authHandler.ForgotPasswordHandler(surface))
		group.Post("/reset-password", rateLimit(cfg.OTPRateLimit, 15*time.Minute), authHandler.ResetPasswordHandler(surface))

		group.Get("/me", protected, userHandler.GetMeHandler)
		group.Put("/me", protected, userHandler.UpdateMeHandler)
	}

	// ==========================================
	// USER SIGNUP
	// ==========================================
	userGroup := app.Group(role.User.Prefix())
	userGroup.Post("/register/request-otp", rateLimit(cfg.OTPRateLimit, 15*time.Minute), authHandler.RequestRegistrationOTPHandler)
	userGroup.Post("/register/verify-otp", rateLimit(cfg.OTPRateLimit, 15*time.Minute), authHandler.VerifyRegistrationOTPHandler)
	userGroup.Post("/google", rateLimit(cfg.LoginRateLimit, 15*time.Minute), authHandler.GoogleIDTokenHandler)
	userGroup.Get("/google/login", authHandler.GoogleLoginHandler)
	userGroup.Get("/google/callback", authHandler.GoogleCallbackHandler)

	// ==========================================
	// ACCOUNT MANAGEMENT (Admin only)
	// ==========================================
	adminGroup := app.Group(role.Admin.Prefix())
	adminOnly := guard.JWTProtected(role.Admin)
	adminGroup.Get("/users", adminOnly, userHandler.ListHandler(role.User))
	adminGroup.Patch("/users/:id/deactivate", adminOnly, userHandler.DeactivateHandler(role.User))
	adminGroup.Post("/community-admins", adminOnly, userHandler.CreateCommunityAdminHandler)
	adminGroup.Get("/community-admins", adminOnly, userHandler.ListHandler(role.CommunityAdmin))
	adminGroup.Patch("/community-admins/:id/deactivate", adminOnly, userHandler.DeactivateHandler(role.CommunityAdmin))
}

// rateLimit allows limit requests per IP and route within window.
func rateLimit(limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|" + c.Path()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.TooManyRequests(c)
		},
	})
}
