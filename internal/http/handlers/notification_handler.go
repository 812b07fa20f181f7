package handlers

import (
	"strconv"

	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *repositories.NotificationRepo
	log           *zap.Logger
}

func NewNotificationHandler(notifications *repositories.NotificationRepo, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	limit, offset := 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.notifications.ListByUser(c.Context(), caller.ID, unreadOnly, limit, offset)
	if err != nil {
		h.log.Error("list notifications failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: notifications})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid notification id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	if err := h.notifications.MarkRead(c.Context(), id, caller.ID); err != nil {
		h.log.Error("mark notification read failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
