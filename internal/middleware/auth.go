package middleware

import (
	"strings"

	"github.com/gametrade/backend/internal/auth"
	"github.com/gametrade/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

const CtxCaller = "caller"

// AuthMiddleware parses the bearer token and stores the caller in
// request locals for handlers and RBAC checks downstream.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization header",
			})
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		claims, err := auth.ParseJWT(jwtSecret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(CtxCaller, models.Caller{
			ID:          claims.UserID,
			Role:        claims.Role,
			KYCVerified: claims.KYCVerified,
			Suspended:   claims.Suspended,
		})
		return c.Next()
	}
}

// GetCaller returns the authenticated caller placed by AuthMiddleware.
func GetCaller(c *fiber.Ctx) (models.Caller, bool) {
	caller, ok := c.Locals(CtxCaller).(models.Caller)
	return caller, ok
}

// AdminMiddleware gates arbitration routes. Runs after AuthMiddleware.
func AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := GetCaller(c)
		if !ok || caller.Role != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin access required",
			})
		}
		return c.Next()
	}
}
