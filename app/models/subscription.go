package models

import "time"

const (
	BillingProviderStripe = "stripe"
)

// Plan tiers a subscription can carry.
const (
	PlanTierStarter = "starter"
	PlanTierPro     = "pro"
)

// Subscription statuses the evaluator cares about. Any other processor value
// is stored verbatim.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription mirrors a processor subscription for one account.
//
// ActiveAccountID holds AccountID while Status is active and NULL otherwise.
// Its unique index is what keeps an account at one active subscription.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	AccountID            uint       `gorm:"not null;index:idx_subscriptions_account_status,priority:1" json:"account_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_id" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	PlanTier             string     `gorm:"type:varchar(20);not null;default:'starter'" json:"plan_tier"`
	Status               string     `gorm:"type:varchar(32);not null;index:idx_subscriptions_account_status,priority:2" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	ActiveAccountID      *uint      `gorm:"uniqueIndex:ux_subscriptions_active_account" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the evaluator treats this row as the account's subscription.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// HasPeriod reports whether both period bounds are known.
func (s *Subscription) HasPeriod() bool {
	return s != nil && s.CurrentPeriodStart != nil && s.CurrentPeriodEnd != nil
}

// ActiveSlotFor returns the value ActiveAccountID must hold for the given status.
func ActiveSlotFor(accountID uint, status string) *uint {
	if status != SubscriptionStatusActive {
		return nil
	}
	id := accountID
	return &id
}
