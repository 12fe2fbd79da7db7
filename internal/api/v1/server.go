package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the v1 operations documented in openapi.yml.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetQuota(c *fiber.Ctx) error
	ListVerifications(c *fiber.Ctx) error
	CreateVerification(c *fiber.Ctx) error
	GetVerification(c *fiber.Ctx) error
	CancelVerification(c *fiber.Ctx) error
	ListUsage(c *fiber.Ctx) error
	CreateSubscriptionCheckout(c *fiber.Ctx) error
	CreatePaymentCheckout(c *fiber.Ctx) error
	CreatePortalSession(c *fiber.Ctx) error
}

// RegisterHandlers mounts si on router. Everything except ping runs behind
// the auth handlers.
func RegisterHandlers(router fiber.Router, si ServerInterface, auth ...fiber.Handler) {
	router.Get("/ping", si.GetPing)

	with := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, auth...), h)
	}
	router.Get("/quota", with(si.GetQuota)...)
	router.Get("/verifications", with(si.ListVerifications)...)
	router.Post("/verifications", with(si.CreateVerification)...)
	router.Get("/verifications/:id", with(si.GetVerification)...)
	router.Post("/verifications/:id/cancel", with(si.CancelVerification)...)
	router.Get("/usage", with(si.ListUsage)...)
	router.Post("/billing/checkout/subscription", with(si.CreateSubscriptionCheckout)...)
	router.Post("/billing/checkout/payment", with(si.CreatePaymentCheckout)...)
	router.Post("/billing/portal", with(si.CreatePortalSession)...)
}
