package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/app/repository"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
)

// APIKeyAuth authenticates requests carrying an account API key header.
func APIKeyAuth(repo repository.AccountRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		account, err := repo.GetByAPIKeyHash(c.UserContext(), models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[Auth] api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		// Refresh last-used timestamp best-effort.
		if err := repo.TouchAPIKey(c.UserContext(), account.ID); err != nil {
			log.Warnf("[Auth] failed to update api key usage timestamp for account %d: %v", account.ID, err)
		}

		usercontext.Set(c, usercontext.AccountContext{
			AccountID:        account.ID,
			Email:            account.Email,
			StripeCustomerID: account.StripeCustomerID,
			APIKeyPrefix:     account.APIKeyPrefix,
			IsAuthenticated:  true,
		})
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
