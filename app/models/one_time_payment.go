package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// OneTimePayment is a single pay-as-you-go credit bought through checkout.
// It is available while completed and not applied to a verification.
type OneTimePayment struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	AccountID               uint       `gorm:"not null;index:idx_one_time_payments_available,priority:1" json:"account_id"`
	StripeCheckoutSessionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_one_time_payments_session" json:"stripe_checkout_session_id"`
	StripePaymentIntentID   *string    `gorm:"type:varchar(191);default:null" json:"stripe_payment_intent_id,omitempty"`
	AmountCents             int64      `gorm:"not null" json:"amount_cents"`
	Currency                string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status                  string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_one_time_payments_available,priority:2" json:"status"`
	VerificationID          *uint      `gorm:"index" json:"verification_id,omitempty"`
	AppliedAt               *time.Time `gorm:"type:timestamp;default:null" json:"applied_at,omitempty"`
	CompletedAt             *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAvailable reports whether the payment can pay for a new verification.
func (p *OneTimePayment) IsAvailable() bool {
	return p != nil && p.Status == PaymentStatusCompleted && p.VerificationID == nil
}
