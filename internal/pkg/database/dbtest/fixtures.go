package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

var seq atomic.Int64

// Period returns a one-month billing period starting at start, truncated to seconds in UTC.
func Period(start time.Time) (time.Time, time.Time) {
	s := start.UTC().Truncate(time.Second)
	return s, s.AddDate(0, 1, 0)
}

// CreateAccount inserts an account with a unique email.
func CreateAccount(t testing.TB, db *gorm.DB, customerID string) *models.Account {
	t.Helper()
	n := seq.Add(1)
	a := &models.Account{
		Email:            fmt.Sprintf("owner%d@example.com", n),
		Name:             fmt.Sprintf("Owner %d", n),
		StripeCustomerID: customerID,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

// CreateSubscription inserts an active subscription for the account covering [start, end).
func CreateSubscription(t testing.TB, db *gorm.DB, accountID uint, tier string, start, end time.Time) *models.Subscription {
	t.Helper()
	n := seq.Add(1)
	s, e := start.UTC(), end.UTC()
	sub := &models.Subscription{
		AccountID:            accountID,
		StripeSubscriptionID: fmt.Sprintf("sub_test_%d", n),
		StripeCustomerID:     fmt.Sprintf("cus_test_%d", n),
		PlanTier:             tier,
		Status:               models.SubscriptionStatusActive,
		CurrentPeriodStart:   &s,
		CurrentPeriodEnd:     &e,
		ActiveAccountID:      models.ActiveSlotFor(accountID, models.SubscriptionStatusActive),
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

// CreatePayment inserts a one-time payment in the given status.
func CreatePayment(t testing.TB, db *gorm.DB, accountID uint, status string, completedAt *time.Time) *models.OneTimePayment {
	t.Helper()
	n := seq.Add(1)
	p := &models.OneTimePayment{
		AccountID:               accountID,
		StripeCheckoutSessionID: fmt.Sprintf("cs_test_%d", n),
		AmountCents:             4900,
		Currency:                "usd",
		Status:                  status,
		CompletedAt:             completedAt,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

// CreateVerification inserts a verification owned by accountID in the given status.
func CreateVerification(t testing.TB, db *gorm.DB, accountID uint, status string) *models.Verification {
	t.Helper()
	n := seq.Add(1)
	v := &models.Verification{
		AccountID:    accountID,
		SubjectName:  fmt.Sprintf("Subject %d", n),
		SubjectEmail: fmt.Sprintf("subject%d@example.com", n),
		Status:       status,
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create verification: %v", err)
	}
	return v
}
