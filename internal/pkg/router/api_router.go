package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	apiv1 "github.com/Tariqlearnstocode/appchecker-sub001/internal/api/v1"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.deps.API, middleware.APIKeyAuth(h.deps.Accounts), middleware.RequireAPIAuth)
}

func (h ApiRouter) limiterConfig() limiter.Config {
	cfg := limiter.Config{
		Max:        h.deps.LimiterMax,
		Expiration: h.deps.LimiterWindow,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if key := c.Get("X-API-Key"); key != "" {
				return "key:" + models.HashAPIKey(key)
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	}
	if cfg.Max <= 0 {
		cfg.Max = 120
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	return cfg
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
