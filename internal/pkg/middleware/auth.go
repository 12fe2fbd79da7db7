package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
)

// RequireAPIAuth rejects requests that reached it without an authenticated
// account context, returning JSON 401.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsAuthenticated(c) || usercontext.GetAccountID(c) == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "API key required",
		})
	}
	return c.Next()
}
