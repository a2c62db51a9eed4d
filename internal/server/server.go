package server

import (
	"errors"

	"github.com/Kyz7/chainverse/internal/auth"
	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/mailer"
	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP server is assembled from.
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Issuer *utils.TokenIssuer
	OTPs   *otp.Service
	Mailer mailer.Mailer
	// Google overrides the ID token verifier; when nil one is built from
	// GOOGLE_CLIENT_ID if it is set.
	Google auth.GoogleVerifier
}

func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})

	SetupRoutes(app, deps)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return response.Error(c, fe.Code, "NOT_FOUND", fe.Message, nil)
		case fiber.StatusMethodNotAllowed:
			return response.Error(c, fe.Code, "METHOD_NOT_ALLOWED", fe.Message, nil)
		}
		return response.Error(c, fe.Code, "ERROR", fe.Message, nil)
	}
	return response.InternalError(c, "Something went wrong, please try again")
}
