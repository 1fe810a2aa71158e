package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hseguard/syncd/internal/auth"
	"github.com/hseguard/syncd/pkg/response"
)

// ServiceAuth guards the worker's operational endpoints with the shared
// HMAC service token. An empty secret disables the guard (development).
func ServiceAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		token := extractToken(c)
		if token == "" {
			return response.Unauthorized(c, "Missing bearer token")
		}

		claims, err := auth.ValidateServiceToken(token, secret)
		if err != nil {
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("companyId", claims.CompanyID)
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades
	return c.Query("token")
}
