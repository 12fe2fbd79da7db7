package billing

import "context"

// CheckoutMode is the kind of checkout session to open.
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// CustomerRequest describes a processor customer to create.
type CustomerRequest struct {
	AccountID uint
	Email     string
	Name      string
}

// CheckoutRequest describes a hosted checkout session.
type CheckoutRequest struct {
	Mode                 CheckoutMode
	CustomerID           string
	PriceID              string
	SuccessURL           string
	CancelURL            string
	ClientReferenceID    string
	Metadata             map[string]string
	SubscriptionMetadata map[string]string
}

// CheckoutSession is the processor's answer to a CheckoutRequest.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Processor is the payment processor surface checkout needs.
type Processor interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
