package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/billing/meterevent"
)

// Event is one unit of usage sent to the metering system.
type Event struct {
	AccountID      uint
	VerificationID uint
	CustomerID     string
	Value          int64
	Timestamp      time.Time
}

// Identifier is the idempotency key the metering system dedupes on.
func (e Event) Identifier() string {
	return "verification-" + strconv.FormatUint(uint64(e.VerificationID), 10)
}

// Meter reports usage to an external billing system.
type Meter interface {
	Report(ctx context.Context, ev Event) error
}

// StripeMeter sends billing meter events.
type StripeMeter struct {
	client    meterevent.Client
	eventName string
}

func NewStripeMeter(secretKey, eventName string) *StripeMeter {
	return &StripeMeter{
		client:    meterevent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		eventName: eventName,
	}
}

func (m *StripeMeter) Report(ctx context.Context, ev Event) error {
	if ev.CustomerID == "" {
		return fmt.Errorf("usage: meter event for verification %d has no customer", ev.VerificationID)
	}
	value := ev.Value
	if value <= 0 {
		value = 1
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	params := &stripe.BillingMeterEventParams{
		EventName:  stripe.String(m.eventName),
		Identifier: stripe.String(ev.Identifier()),
		Timestamp:  stripe.Int64(ts.Unix()),
		Payload: map[string]string{
			"stripe_customer_id": ev.CustomerID,
			"value":              strconv.FormatInt(value, 10),
		},
	}
	params.Context = ctx

	if _, err := m.client.New(params); err != nil {
		return fmt.Errorf("usage: send meter event %s: %w", ev.Identifier(), err)
	}
	return nil
}
