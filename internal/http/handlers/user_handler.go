package handlers

import (
	"errors"

	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gametrade/backend/internal/models"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	users *repositories.UserRepo
	log   *zap.Logger
}

func NewUserHandler(users *repositories.UserRepo, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	user, err := h.users.GetByID(c.Context(), caller.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
		}
		h.log.Error("get user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

func (h *UserHandler) Ping(c *fiber.Ctx) error {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	if err := h.users.Touch(c.Context(), caller.ID); err != nil {
		h.log.Error("touch user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// ProvisionUser creates the local account row for an identity issued by
// the external auth service. Admin only; trading roles come from the
// provisioning payload, not from the caller.
func (h *UserHandler) ProvisionUser(c *fiber.Ctx) error {
	var req dto.ProvisionUserRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return badRequest(c, "username is required")
	}
	role := req.Role
	if role == "" {
		role = models.RoleBuyer
	}
	switch role {
	case models.RoleBuyer, models.RoleSeller, models.RoleAdmin:
	default:
		return badRequest(c, "unknown role")
	}

	user := &models.User{
		Username:    req.Username,
		Role:        role,
		KYCVerified: req.KYCVerified,
		FeeRateBPS:  req.FeeRateBPS,
	}
	if err := h.users.Create(c.Context(), user); err != nil {
		h.log.Error("provision user failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: user})
}
