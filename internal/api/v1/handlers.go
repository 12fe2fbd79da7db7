package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	verifications *controllers.VerificationController
	billing       *controllers.BillingController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(verifications *controllers.VerificationController, billing *controllers.BillingController) *APIServer {
	return &APIServer{verifications: verifications, billing: billing}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) GetQuota(c *fiber.Ctx) error {
	return s.verifications.HandleGetQuota(c)
}

func (s *APIServer) ListVerifications(c *fiber.Ctx) error {
	return s.verifications.HandleListVerifications(c)
}

// CreateVerification answers 201 on success, 402 when no credit is available
// and 403 when the subscription period is used up.
func (s *APIServer) CreateVerification(c *fiber.Ctx) error {
	return s.verifications.HandleCreateVerification(c)
}

func (s *APIServer) GetVerification(c *fiber.Ctx) error {
	return s.verifications.HandleGetVerification(c)
}

func (s *APIServer) CancelVerification(c *fiber.Ctx) error {
	return s.verifications.HandleCancelVerification(c)
}

func (s *APIServer) ListUsage(c *fiber.Ctx) error {
	return s.verifications.HandleListUsage(c)
}

func (s *APIServer) CreateSubscriptionCheckout(c *fiber.Ctx) error {
	return s.billing.HandleCreateSubscriptionCheckout(c)
}

func (s *APIServer) CreatePaymentCheckout(c *fiber.Ctx) error {
	return s.billing.HandleCreatePaymentCheckout(c)
}

func (s *APIServer) CreatePortalSession(c *fiber.Ctx) error {
	return s.billing.HandleCreatePortalSession(c)
}
