package handlers

import (
	"strconv"

	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gametrade/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
	log            *zap.Logger
}

func NewDisputeHandler(disputeService *services.DisputeService, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService, log: log}
}

func (h *DisputeHandler) CreateDispute(c *fiber.Ctx) error {
	var req dto.CreateDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	txnID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		return badRequest(c, "invalid transaction_id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	dispute, err := h.disputeService.Create(c.Context(), services.CreateDisputeInput{
		TransactionID: txnID,
		Category:      req.Category,
		Description:   req.Description,
	}, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) GetDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	dispute, err := h.disputeService.Get(c.Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) ListDisputes(c *fiber.Ctx) error {
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
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}

	disputes, err := h.disputeService.List(c.Context(), status, limit, offset, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: disputes})
}

func (h *DisputeHandler) MarkUnderReview(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	if err := h.disputeService.MarkUnderReview(c.Context(), id, caller); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DisputeHandler) ResolveDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	dispute, err := h.disputeService.Resolve(c.Context(), services.ResolveDisputeInput{
		DisputeID:           id,
		Resolution:          req.Resolution,
		PartialRefundAmount: req.PartialRefundAmount,
	}, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}
