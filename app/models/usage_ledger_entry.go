package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LedgerSourceSubscription = "subscription"
	LedgerSourcePayg         = "payg"
)

// ReversalReasonVerificationCanceled is stamped on entries reversed by a cancellation.
const ReversalReasonVerificationCanceled = "verification_canceled"

// UsageLedgerEntry records one unit of billable usage against a verification.
// Subscription entries carry the external subscription id and period bounds,
// payg entries carry the consumed payment. ReversedAt is set at most once.
type UsageLedgerEntry struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	VerificationID       uint           `gorm:"not null;index" json:"verification_id"`
	AccountID            uint           `gorm:"not null;index" json:"account_id"`
	Source               string         `gorm:"type:varchar(20);not null" json:"source"`
	SubscriptionID       *uint          `gorm:"default:null" json:"subscription_id,omitempty"`
	StripeSubscriptionID *string        `gorm:"type:varchar(191);default:null;index:idx_usage_ledger_period,priority:1" json:"stripe_subscription_id,omitempty"`
	PeriodStart          *time.Time     `gorm:"type:timestamp;default:null;index:idx_usage_ledger_period,priority:2" json:"period_start,omitempty"`
	PeriodEnd            *time.Time     `gorm:"type:timestamp;default:null;index:idx_usage_ledger_period,priority:3" json:"period_end,omitempty"`
	OneTimePaymentID     *uint          `gorm:"default:null;index" json:"one_time_payment_id,omitempty"`
	ReversedAt           *time.Time     `gorm:"type:timestamp;default:null" json:"reversed_at,omitempty"`
	ReversalReason       string         `gorm:"type:varchar(64);default:''" json:"reversal_reason,omitempty"`
	ReversalMetadata     datatypes.JSON `json:"reversal_metadata,omitempty"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsReversed reports whether the entry no longer counts as consumed usage.
func (e *UsageLedgerEntry) IsReversed() bool {
	return e != nil && e.ReversedAt != nil
}
