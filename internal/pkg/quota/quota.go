// Package quota decides whether an account may create one more verification
// and which source pays for it.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
)

// Denial reasons.
const (
	ReasonLimitReached    = "limit_reached"
	ReasonPaymentRequired = "payment_required"
)

// Pricing is the one-time credit price quoted in payment_required denials.
type Pricing struct {
	AmountCents int64
	Currency    string
	Display     string
}

// Decision is the outcome of Evaluate. Allowed decisions carry the Source that
// pays for the verification; denied ones carry a Reason plus its details.
type Decision struct {
	Allowed bool          `json:"allowed"`
	Source  ledger.Source `json:"-"`
	Reason  string        `json:"reason,omitempty"`

	Tier     string `json:"tier,omitempty"`
	Usage    int64  `json:"usage"`
	Limit    int    `json:"limit,omitempty"`
	NextPlan string `json:"next_plan,omitempty"`

	SubscriptionID       uint       `json:"subscription_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	PeriodStart          *time.Time `json:"period_start,omitempty"`
	PeriodEnd            *time.Time `json:"period_end,omitempty"`

	PaymentID  uint   `json:"payment_id,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
	Currency   string `json:"currency,omitempty"`
	Price      string `json:"price,omitempty"`
}

// SourceKind returns "subscription", "payg" or "" for denials.
func (d *Decision) SourceKind() string {
	if d == nil || d.Source == nil {
		return ""
	}
	return string(d.Source.Kind())
}

// Err converts a denial into its taxonomy error. Allowed decisions return nil.
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonLimitReached:
		return apperrors.ErrQuotaExceeded.WithDetails(map[string]interface{}{
			"reason":    d.Reason,
			"usage":     d.Usage,
			"limit":     d.Limit,
			"tier":      d.Tier,
			"next_plan": d.NextPlan,
		})
	default:
		details := map[string]interface{}{
			"reason":      ReasonPaymentRequired,
			"price_cents": d.PriceCents,
			"currency":    d.Currency,
			"price":       d.Price,
		}
		if d.PaymentID != 0 {
			details["payment_id"] = d.PaymentID
		}
		return apperrors.ErrPaymentRequired.WithDetails(details)
	}
}

// Evaluator reads subscription, ledger and payment state. It never writes.
type Evaluator struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	pricing Pricing
	lock    bool
}

func NewEvaluator(db *gorm.DB, pricing Pricing) *Evaluator {
	return &Evaluator{db: db, ledger: ledger.New(db), pricing: pricing}
}

// WithTx returns an evaluator reading inside tx. The active subscription row is
// locked for the rest of the transaction where the dialect supports it.
func (e *Evaluator) WithTx(tx *gorm.DB) *Evaluator {
	return &Evaluator{db: tx, ledger: e.ledger.WithTx(tx), pricing: e.pricing, lock: true}
}

// Evaluate decides whether accountID may create one more verification right now.
func (e *Evaluator) Evaluate(ctx context.Context, accountID uint) (*Decision, error) {
	sub, err := e.activeSubscription(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return e.evaluateSubscription(ctx, sub)
	}
	return e.evaluatePayg(ctx, accountID)
}

func (e *Evaluator) activeSubscription(ctx context.Context, accountID uint) (*models.Subscription, error) {
	q := e.db.WithContext(ctx)
	if e.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sub models.Subscription
	err := q.Where("account_id = ? AND status = ?", accountID, models.SubscriptionStatusActive).
		Order("current_period_end DESC").
		Order("id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: load active subscription: %w", err)
	}
	if !sub.HasPeriod() {
		log.Warnf("[Quota] subscription %s for account %d has no period bounds, treating account as pay-as-you-go", sub.StripeSubscriptionID, accountID)
		return nil, nil
	}
	return &sub, nil
}

func (e *Evaluator) evaluateSubscription(ctx context.Context, sub *models.Subscription) (*Decision, error) {
	start := ledger.NormalizeTime(*sub.CurrentPeriodStart)
	end := ledger.NormalizeTime(*sub.CurrentPeriodEnd)

	used, err := e.ledger.CountActiveInPeriod(ctx, sub.StripeSubscriptionID, start, end)
	if err != nil {
		return nil, err
	}

	plan := entitlements.NormalizePlan(sub.PlanTier)
	limit := entitlements.PeriodLimit(plan)

	d := &Decision{
		Tier:                 string(plan),
		Usage:                used,
		Limit:                limit,
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		StripeCustomerID:     sub.StripeCustomerID,
		PeriodStart:          &start,
		PeriodEnd:            &end,
	}
	if used >= int64(limit) {
		d.Reason = ReasonLimitReached
		d.NextPlan = string(entitlements.NextPlan(plan))
		return d, nil
	}

	d.Allowed = true
	d.Source = ledger.SubscriptionSource{
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		StripeCustomerID:     sub.StripeCustomerID,
		PeriodStart:          start,
		PeriodEnd:            end,
	}
	return d, nil
}

// PaymentRequired is the denial for an account without available credit,
// quoting the one-time price.
func (e *Evaluator) PaymentRequired() *Decision {
	return &Decision{
		Reason:     ReasonPaymentRequired,
		PriceCents: e.pricing.AmountCents,
		Currency:   e.pricing.Currency,
		Price:      e.pricing.Display,
	}
}

func (e *Evaluator) evaluatePayg(ctx context.Context, accountID uint) (*Decision, error) {
	var payment models.OneTimePayment
	err := e.db.WithContext(ctx).
		Where("account_id = ? AND status = ? AND verification_id IS NULL", accountID, models.PaymentStatusCompleted).
		Order("completed_at DESC").
		Order("id DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e.PaymentRequired(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: load available payment: %w", err)
	}

	return &Decision{
		Allowed:    true,
		Source:     ledger.PaygSource{PaymentID: payment.ID, AmountCents: payment.AmountCents},
		PaymentID:  payment.ID,
		PriceCents: payment.AmountCents,
		Currency:   payment.Currency,
	}, nil
}
