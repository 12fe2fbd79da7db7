package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ratelimit"
)

// CheckoutService opens processor checkout and portal sessions for accounts.
type CheckoutService struct {
	svc       *Service
	processor Processor
	cfg       Config
	limiter   *ratelimit.Limiter
}

// NewCheckoutService wires checkout. A nil limiter disables throttling.
func NewCheckoutService(svc *Service, processor Processor, cfg Config, limiter *ratelimit.Limiter) *CheckoutService {
	return &CheckoutService{svc: svc, processor: processor, cfg: cfg, limiter: limiter}
}

// CreateSubscriptionCheckout opens a subscription checkout for plan. The
// session carries the account id and plan so the subscription events can be
// matched back to the account.
func (c *CheckoutService) CreateSubscriptionCheckout(ctx context.Context, accountID uint, plan string) (*CheckoutSession, error) {
	if !entitlements.IsSubscribable(plan) {
		return nil, apperrors.ErrValidation.WithDetails(map[string]interface{}{"field": "plan", "allowed": []string{"starter", "pro"}})
	}
	p := entitlements.NormalizePlan(plan)
	priceID := c.cfg.PriceIDFor(p)
	if priceID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidState, fmt.Sprintf("no price configured for plan %s", p))
	}
	// plan changes for subscribed accounts go through the billing portal
	active, err := c.svc.ActiveSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.New(apperrors.CodeInvalidState, "account already has an active subscription").WithDetails(map[string]interface{}{
			"reason":                 "already_subscribed",
			"current_plan":           active.PlanTier,
			"stripe_subscription_id": active.StripeSubscriptionID,
			"manage_url":             "/api/v1/billing/portal",
		})
	}
	if err := c.throttle(ctx, accountID); err != nil {
		return nil, err
	}

	account, customerID, err := c.ensureCustomer(ctx, accountID)
	if err != nil {
		return nil, err
	}

	idStr := strconv.FormatUint(uint64(account.ID), 10)
	session, err := c.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		Mode:              CheckoutModeSubscription,
		CustomerID:        customerID,
		PriceID:           priceID,
		SuccessURL:        c.cfg.SuccessURL,
		CancelURL:         c.cfg.CancelURL,
		ClientReferenceID: idStr,
		Metadata:          map[string]string{"account_id": idStr, "plan": string(p)},
		SubscriptionMetadata: map[string]string{
			"account_id": idStr,
			"plan":       string(p),
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExternalService, "could not create checkout session", err)
	}
	return session, nil
}

// CreatePaymentCheckout opens a one-time checkout and stores its pending
// payment before returning, so the completion webhook always finds the row.
func (c *CheckoutService) CreatePaymentCheckout(ctx context.Context, accountID uint) (*CheckoutSession, error) {
	if c.cfg.OneTimePriceID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidState, "no one-time price configured")
	}
	if err := c.throttle(ctx, accountID); err != nil {
		return nil, err
	}

	account, customerID, err := c.ensureCustomer(ctx, accountID)
	if err != nil {
		return nil, err
	}

	idStr := strconv.FormatUint(uint64(account.ID), 10)
	session, err := c.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		Mode:              CheckoutModePayment,
		CustomerID:        customerID,
		PriceID:           c.cfg.OneTimePriceID,
		SuccessURL:        c.cfg.SuccessURL,
		CancelURL:         c.cfg.CancelURL,
		ClientReferenceID: idStr,
		Metadata:          map[string]string{"account_id": idStr, "kind": "one_time"},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeExternalService, "could not create checkout session", err)
	}

	if _, err := c.svc.CreatePendingPayment(ctx, account.ID, session.ID, c.cfg.OneTimePriceCents(), c.cfg.Currency); err != nil {
		log.Errorf("[Checkout] session %s created but payment row failed for account %d: %v", session.ID, account.ID, err)
		return nil, fmt.Errorf("store pending payment: %w", err)
	}
	return session, nil
}

// CreatePortalSession opens the processor's billing portal for an account that already has a customer.
func (c *CheckoutService) CreatePortalSession(ctx context.Context, accountID uint) (string, error) {
	account, err := c.svc.Account(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account.StripeCustomerID == "" {
		return "", apperrors.New(apperrors.CodeInvalidState, "account has no billing profile yet")
	}
	if err := c.throttle(ctx, accountID); err != nil {
		return "", err
	}

	url, err := c.processor.CreatePortalSession(ctx, account.StripeCustomerID, c.cfg.PortalReturnURL)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalService, "could not create portal session", err)
	}
	return url, nil
}

func (c *CheckoutService) throttle(ctx context.Context, accountID uint) error {
	if c.limiter == nil {
		return nil
	}
	ok, _, err := c.limiter.Allow(ctx, "checkout:"+strconv.FormatUint(uint64(accountID), 10))
	if err != nil {
		// counter store outage must not block payments
		log.Warnf("[Checkout] rate limit store error for account %d: %v", accountID, err)
		return nil
	}
	if !ok {
		return apperrors.ErrRateLimited.WithDetails(map[string]interface{}{
			"limit":          c.cfg.CheckoutLimit,
			"window_seconds": int64(c.cfg.CheckoutWindow.Seconds()),
		})
	}
	return nil
}

// ensureCustomer returns the account and its processor customer id, creating
// the customer on first use.
func (c *CheckoutService) ensureCustomer(ctx context.Context, accountID uint) (*models.Account, string, error) {
	account, err := c.svc.Account(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	if account.StripeCustomerID != "" {
		return account, account.StripeCustomerID, nil
	}

	customerID, err := c.processor.CreateCustomer(ctx, CustomerRequest{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
	})
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeExternalService, "could not create billing customer", err)
	}

	c.svc.BackfillCustomerID(ctx, account.ID, customerID)

	// a concurrent request may have linked a different customer first
	reloaded, err := c.svc.Account(ctx, account.ID)
	if err != nil {
		return nil, "", err
	}
	if reloaded.StripeCustomerID != "" {
		return reloaded, reloaded.StripeCustomerID, nil
	}
	return reloaded, customerID, nil
}
