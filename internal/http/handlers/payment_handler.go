package handlers

import (
	"time"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

// GatewayWebhook receives payment notifications. Signature failures and
// unmatched events still return 200 so the gateway does not retry what
// will never succeed; only transient internal failures return 5xx.
func (h *PaymentHandler) GatewayWebhook(c *fiber.Ctx) error {
	var req dto.GatewayWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(dto.WebhookAck{OK: true, Outcome: string(services.OutcomeIgnored)})
	}

	payload := services.WebhookPayload{
		ID:            req.ID,
		ExternalID:    req.ExternalID,
		Status:        req.Status,
		PaidAmount:    req.PaidAmount,
		PaymentMethod: req.PaymentMethod,
	}
	if req.PaidAt != nil {
		if t, err := time.Parse(time.RFC3339, *req.PaidAt); err == nil {
			payload.PaidAt = &t
		}
	}

	token := c.Get("X-Callback-Token")
	outcome, err := h.paymentService.HandleWebhook(c.Context(), payload, token)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeSignature) {
			h.log.Warn("webhook signature rejected", zap.String("gateway_id", req.ID))
			return c.JSON(dto.WebhookAck{OK: true, Outcome: string(services.OutcomeIgnored)})
		}
		h.log.Error("webhook processing failed", zap.String("gateway_id", req.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.WebhookAck{OK: true, Outcome: string(outcome)})
}
