package middleware

import (
	"strings"

	"autobook/internal/models"
	"autobook/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const tenantKey = "tenant"

func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			logger.Warn("Missing authorization token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token required",
			})
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid token", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(tenantKey, claims.Tenant())
		return c.Next()
	}
}

// Tenant returns the tenant stored by AuthMiddleware, or the zero tenant.
func Tenant(c *fiber.Ctx) models.TenantContext {
	if t, ok := c.Locals(tenantKey).(models.TenantContext); ok {
		return t
	}
	return models.TenantContext{}
}
