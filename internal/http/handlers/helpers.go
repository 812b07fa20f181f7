package handlers

import (
	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/http/dto"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// respondError maps a classified error to its HTTP status and a JSON
// body carrying the machine-readable code and reason.
func respondError(c *fiber.Ctx, err error) error {
	e := apperr.From(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	body := dto.ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		Reason:    e.Reason,
		RequestID: reqID,
	}
	if e.Code == apperr.CodeInternal {
		body.Error = "internal error"
	}
	return c.Status(apperr.HTTPStatus(err)).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, Code: string(apperr.CodeValidation)})
}
