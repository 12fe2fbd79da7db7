package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/cache"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	// Stripe posts raw JSON signed over the exact body.
	app.Post("/webhooks/stripe", h.deps.Billing.HandleStripeWebhook)
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	dbOK := false
	if h.deps.DB != nil {
		if sqlDB, err := h.deps.DB.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}
	}
	redisOK := cache.Available(ctx, time.Second)

	status := fiber.StatusOK
	if !dbOK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"database": dbOK, "redis": redisOK})
}
