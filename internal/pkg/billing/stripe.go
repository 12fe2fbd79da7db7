package billing

import (
	"context"
	"errors"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
)

// StripeProcessor implements Processor against the Stripe API.
type StripeProcessor struct {
	customers customer.Client
	checkout  checkoutsession.Client
	portal    portalsession.Client
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripeProcessor{
		customers: customer.Client{B: backend, Key: secretKey},
		checkout:  checkoutsession.Client{B: backend, Key: secretKey},
		portal:    portalsession.Client{B: backend, Key: secretKey},
	}
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.AddMetadata("account_id", strconv.FormatUint(uint64(req.AccountID), 10))
	params.Context = ctx

	c, err := p.customers.New(params)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, errors.New("price id is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(req.Mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Mode == CheckoutModeSubscription && len(req.SubscriptionMetadata) > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.SubscriptionMetadata,
		}
	}
	params.Context = ctx

	s, err := p.checkout.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	params.Context = ctx

	s, err := p.portal.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}
