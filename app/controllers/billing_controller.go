package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/billing"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
)

// BillingController serves checkout and portal endpoints and receives
// Stripe webhooks.
type BillingController struct {
	checkout   *billing.CheckoutService
	reconciler *billing.Reconciler
}

func NewBillingController(checkout *billing.CheckoutService, reconciler *billing.Reconciler) *BillingController {
	return &BillingController{checkout: checkout, reconciler: reconciler}
}

type subscriptionCheckoutRequest struct {
	Plan string `json:"plan"`
}

func (bc *BillingController) HandleCreateSubscriptionCheckout(c *fiber.Ctx) error {
	var req subscriptionCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	session, err := bc.checkout.CreateSubscriptionCheckout(c.UserContext(), usercontext.GetAccountID(c), req.Plan)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": session.ID, "url": session.URL})
}

func (bc *BillingController) HandleCreatePaymentCheckout(c *fiber.Ctx) error {
	session, err := bc.checkout.CreatePaymentCheckout(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"session_id": session.ID, "url": session.URL})
}

func (bc *BillingController) HandleCreatePortalSession(c *fiber.Ctx) error {
	url, err := bc.checkout.CreatePortalSession(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleStripeWebhook verifies and applies one Stripe delivery. Processing
// failures answer 500 so Stripe redelivers the event.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	result, err := bc.reconciler.HandleWebhook(c.UserContext(), payload, c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(apperrors.Body(err))
		}
		log.Errorf("[Billing] webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   string(apperrors.CodeInternal),
			"message": "webhook processing failed",
		})
	}
	return c.JSON(fiber.Map{
		"received":   true,
		"event_id":   result.EventID,
		"event_type": result.EventType,
		"duplicate":  result.Duplicate,
		"ignored":    result.Ignored,
	})
}
