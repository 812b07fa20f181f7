package handlers

import (
	"strconv"

	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/gametrade/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	txnService     *services.TransactionService
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewTransactionHandler(txnService *services.TransactionService, paymentService *services.PaymentService, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{txnService: txnService, paymentService: paymentService, log: log}
}

func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	var req dto.CreateTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return badRequest(c, "invalid listing_id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	txn, err := h.txnService.Create(c.Context(), listingID, caller, req.PaymentMethod)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: txn})
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	txn, err := h.txnService.Get(c.Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txn})
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	filter := repositories.TransactionFilter{Limit: 20}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	switch c.Query("role") {
	case "seller":
		filter.SellerUserID = &caller.ID
	default:
		filter.BuyerUserID = &caller.ID
	}

	txns, err := h.txnService.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list transactions failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: txns})
}

func (h *TransactionHandler) TransferItem(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	if err := h.txnService.MarkItemTransferred(c.Context(), id, caller); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *TransactionHandler) ConfirmReceipt(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	if err := h.txnService.ConfirmReceipt(c.Context(), id, caller); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *TransactionHandler) RetryPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}

	payment, err := h.paymentService.RetryPayment(c.Context(), id, caller)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *TransactionHandler) GetTransactionEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	caller, ok := middleware.GetCaller(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthenticated"})
	}
	if _, err := h.txnService.Get(c.Context(), id, caller); err != nil {
		return respondError(c, err)
	}

	events, err := h.txnService.GetEvents(c.Context(), id)
	if err != nil {
		h.log.Error("get transaction events failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}
