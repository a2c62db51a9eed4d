package user

import (
	"errors"

	"github.com/Kyz7/chainverse/internal/middleware"
	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/response"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	users *Service
}

func NewHandler(users *Service) *Handler {
	return &Handler{users: users}
}

func (h *Handler) GetMeHandler(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, p.Identity, "Profile retrieved successfully")
}

func (h *Handler) UpdateMeHandler(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var body struct {
		Name          *string `json:"name" validate:"omitempty,min=1,max=100"`
		Bio           *string `json:"bio" validate:"omitempty,max=500"`
		WalletAddress *string `json:"walletAddress" validate:"omitempty,eth_addr"`
		CommunityName *string `json:"communityName" validate:"omitempty,max=100"`
	}
	if ok, err := middleware.BindBody(c, &body); !ok {
		return err
	}

	identity, err := h.users.UpdateProfile(c.UserContext(), p.Surface, p.IdentityID, ProfileUpdate{
		Name:          body.Name,
		Bio:           body.Bio,
		WalletAddress: body.WalletAddress,
		CommunityName: body.CommunityName,
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.Success(c, identity, "Profile updated successfully")
}

// ListHandler lists the identities of one surface for admins. It takes the
// q, status, page, limit, sort_by and order_by query parameters.
func (h *Handler) ListHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := ListParams{
			Query:   c.Query("q", ""),
			Status:  c.Query("status", ""),
			Page:    c.QueryInt("page", 1),
			Limit:   c.QueryInt("limit", 20),
			SortBy:  c.Query("sort_by", "id"),
			OrderBy: c.Query("order_by", "asc"),
		}
		params.normalize()

		identities, total, err := h.users.List(c.UserContext(), surface, params)
		if err != nil {
			return writeError(c, err)
		}

		return response.SuccessWithMeta(c, identities, response.CalculateMeta(params.Page, params.Limit, total), "Accounts retrieved successfully")
	}
}

func (h *Handler) DeactivateHandler(surface role.Surface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return response.BadRequest(c, "Invalid account ID", nil)
		}

		if p, ok := middleware.CurrentPrincipal(c); ok && p.Surface == surface && p.IdentityID == uint(id) {
			return response.BadRequest(c, "Cannot deactivate your own account", nil)
		}

		identity, err := h.users.Deactivate(c.UserContext(), surface, uint(id))
		if err != nil {
			return writeError(c, err)
		}

		return response.Success(c, identity, "Account deactivated")
	}
}

func (h *Handler) CreateCommunityAdminHandler(c *fiber.Ctx) error {
	var body struct {
		Name          string `json:"name" validate:"required,max=100"`
		Email         string `json:"email" validate:"required,email"`
		Password      string `json:"password" validate:"required,min=8,max=72"`
		CommunityName string `json:"communityName" validate:"required,max=100"`
	}
	if ok, err := middleware.BindBody(c, &body); !ok {
		return err
	}

	identity := &models.Identity{
		Surface:       role.CommunityAdmin,
		Name:          body.Name,
		Email:         body.Email,
		CommunityName: body.CommunityName,
		Verified:      true,
	}
	if err := h.users.Create(c.UserContext(), identity, body.Password); err != nil {
		return writeError(c, err)
	}

	return response.Created(c, identity, "Community admin created successfully")
}

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return response.NotFound(c, "Account")
	case errors.Is(err, ErrEmailTaken):
		return response.Conflict(c, "Email already registered")
	default:
		return response.InternalError(c, "Credential store unavailable")
	}
}
