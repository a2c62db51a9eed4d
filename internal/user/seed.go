package user

import (
	"context"
	"log"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/role"
)

// SeedDefaultAdmin creates the first admin account when the admin surface has
// none. It is a no-op without credentials or once any admin exists.
func SeedDefaultAdmin(ctx context.Context, users *Service, email, password string) error {
	if email == "" || password == "" {
		log.Println("⚠️  DEFAULT_ADMIN_EMAIL/DEFAULT_ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	count, err := users.Count(ctx, role.Admin)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := &models.Identity{
		Surface:  role.Admin,
		Name:     "Administrator",
		Email:    email,
		Verified: true,
	}
	if err := users.Create(ctx, admin, password); err != nil {
		return err
	}

	log.Printf("✅ Default admin %s created", admin.Email)
	return nil
}
