package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/database/dbtest"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
)

type reportCall struct {
	accountID      uint
	verificationID uint
	customerID     string
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []reportCall
}

func (f *fakeReporter) Report(_ context.Context, accountID, verificationID uint, customerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reportCall{accountID, verificationID, customerID})
}

func (f *fakeReporter) Calls() []reportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reportCall(nil), f.calls...)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeReporter) {
	t.Helper()
	db := dbtest.New(t)
	ev := quota.NewEvaluator(db, quota.Pricing{AmountCents: 4900, Currency: "usd", Display: "49.00"})
	rep := &fakeReporter{}
	return NewService(db, ev, rep, audit.NewDBSink(db)), db, rep
}

func input(accountID uint) CreateInput {
	return CreateInput{
		AccountID:    accountID,
		SubjectName:  "Jane Applicant",
		SubjectEmail: "jane@example.com",
		Purpose:      "rental application",
		IP:           "203.0.113.7",
	}
}

func TestCreateWithSubscription(t *testing.T) {
	svc, db, rep := newTestService(t)
	ctx := context.Background()

	acc := dbtest.CreateAccount(t, db, "cus_account")
	start, end := dbtest.Period(time.Now().Add(-time.Hour))
	sub := dbtest.CreateSubscription(t, db, acc.ID, models.PlanTierStarter, start, end)

	res, err := svc.Create(ctx, input(acc.ID))
	require.NoError(t, err)
	assert.Equal(t, models.LedgerSourceSubscription, res.Source)
	assert.Equal(t, models.VerificationStatusPending, res.Verification.Status)
	assert.NotZero(t, res.LedgerEntryID)

	var entry models.UsageLedgerEntry
	require.NoError(t, db.First(&entry, res.LedgerEntryID).Error)
	assert.Equal(t, res.Verification.ID, entry.VerificationID)
	require.NotNil(t, entry.StripeSubscriptionID)
	assert.Equal(t, sub.StripeSubscriptionID, *entry.StripeSubscriptionID)

	calls := rep.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, sub.StripeCustomerID, calls[0].customerID)
	assert.Equal(t, res.Verification.ID, calls[0].verificationID)

	var logs int64
	db.Model(&models.AuditLog{}).Where("action = ?", audit.ActionVerificationCreate).Count(&logs)
	assert.Equal(t, int64(1), logs)
}

func TestCreateStopsAtPeriodLimit(t *testing.T) {
	svc, db, rep := newTestService(t)
	ctx := context.Background()

	acc := dbtest.CreateAccount(t, db, "")
	start, end := dbtest.Period(time.Now().Add(-time.Hour))
	dbtest.CreateSubscription(t, db, acc.ID, models.PlanTierStarter, start, end)

	for i := 0; i < 10; i++ {
		_, err := svc.Create(ctx, input(acc.ID))
		require.NoError(t, err, "creation %d", i+1)
	}

	_, err := svc.Create(ctx, input(acc.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrQuotaExceeded))

	var count int64
	db.Model(&models.Verification{}).Where("account_id = ?", acc.ID).Count(&count)
	assert.Equal(t, int64(10), count)
	assert.Len(t, rep.Calls(), 10)
}

func TestCreateConsumesPayment(t *testing.T) {
	svc, db, rep := newTestService(t)
	ctx := context.Background()

	acc := dbtest.CreateAccount(t, db, "cus_payg")
	completed := time.Now().UTC().Truncate(time.Second)
	pay := dbtest.CreatePayment(t, db, acc.ID, models.PaymentStatusCompleted, &completed)

	res, err := svc.Create(ctx, input(acc.ID))
	require.NoError(t, err)
	assert.Equal(t, models.LedgerSourcePayg, res.Source)

	var stored models.OneTimePayment
	require.NoError(t, db.First(&stored, pay.ID).Error)
	require.NotNil(t, stored.VerificationID)
	assert.Equal(t, res.Verification.ID, *stored.VerificationID)
	assert.NotNil(t, stored.AppliedAt)

	calls := rep.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cus_payg", calls[0].customerID)

	_, err = svc.Create(ctx, input(acc.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPaymentRequired))
}

func TestCreateWithoutCredit(t *testing.T) {
	svc, db, rep := newTestService(t)

	acc := dbtest.CreateAccount(t, db, "")
	dbtest.CreatePayment(t, db, acc.ID, models.PaymentStatusPending, nil)

	_, err := svc.Create(context.Background(), input(acc.ID))
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodePaymentRequired, appErr.Code)
	assert.Equal(t, int64(4900), appErr.Details["price_cents"])

	var count int64
	db.Model(&models.Verification{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, rep.Calls())
}

func TestConcurrentCreatesConsumePaymentOnce(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	acc := dbtest.CreateAccount(t, db, "")
	completed := time.Now().UTC()
	dbtest.CreatePayment(t, db, acc.ID, models.PaymentStatusCompleted, &completed)

	const attempts = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		errs []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, input(acc.ID))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	require.Len(t, errs, attempts-1)
	for _, err := range errs {
		assert.True(t, errors.Is(err, apperrors.ErrPaymentRequired), "unexpected error: %v", err)
	}

	var entries int64
	db.Model(&models.UsageLedgerEntry{}).Where("account_id = ?", acc.ID).Count(&entries)
	assert.Equal(t, int64(1), entries)
}

func TestApplyPaymentLoserGetsPriceDetails(t *testing.T) {
	svc, db, _ := newTestService(t)

	acc := dbtest.CreateAccount(t, db, "")
	completed := time.Now().UTC()
	pay := dbtest.CreatePayment(t, db, acc.ID, models.PaymentStatusCompleted, &completed)
	winner := dbtest.CreateVerification(t, db, acc.ID, models.VerificationStatusPending)
	loser := dbtest.CreateVerification(t, db, acc.ID, models.VerificationStatusPending)

	require.NoError(t, svc.applyPayment(db, pay.ID, winner.ID))

	err := svc.applyPayment(db, pay.ID, loser.ID)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodePaymentRequired, appErr.Code)
	assert.Equal(t, quota.ReasonPaymentRequired, appErr.Details["reason"])
	assert.Equal(t, int64(4900), appErr.Details["price_cents"])
	assert.Equal(t, "usd", appErr.Details["currency"])
	assert.Equal(t, "49.00", appErr.Details["price"])
	assert.Equal(t, pay.ID, appErr.Details["payment_id"])

	var stored models.OneTimePayment
	require.NoError(t, db.First(&stored, pay.ID).Error)
	require.NotNil(t, stored.VerificationID)
	assert.Equal(t, winner.ID, *stored.VerificationID)
}

func TestCreateLosesPaymentClaimedAfterEvaluate(t *testing.T) {
	svc, db, rep := newTestService(t)
	ctx := context.Background()

	acc := dbtest.CreateAccount(t, db, "")
	completed := time.Now().UTC()
	pay := dbtest.CreatePayment(t, db, acc.ID, models.PaymentStatusCompleted, &completed)

	// another creation claims the payment between the evaluation and the claim
	err := db.Callback().Create().Before("gorm:create").Register("test:claim_payment", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "verifications" {
			return
		}
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE one_time_payments SET verification_id = ? WHERE id = ?", 9999, pay.ID)
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, input(acc.ID))
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodePaymentRequired, appErr.Code)
	assert.Equal(t, int64(4900), appErr.Details["price_cents"])

	var verifications, entries int64
	require.NoError(t, db.Model(&models.Verification{}).Count(&verifications).Error)
	require.NoError(t, db.Model(&models.UsageLedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, verifications)
	assert.Zero(t, entries)
	assert.Empty(t, rep.Calls())
}

func TestCreateValidation(t *testing.T) {
	svc, db, _ := newTestService(t)
	acc := dbtest.CreateAccount(t, db, "")

	in := input(acc.ID)
	in.SubjectEmail = "not-an-email"
	in.SubjectName = ""

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)
	fields, ok := appErr.Details["fields"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "email", fields["subject_email"])
	assert.Equal(t, "required", fields["subject_name"])
}

func TestCreateUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), input(9999))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetChecksOwnership(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	owner := dbtest.CreateAccount(t, db, "")
	other := dbtest.CreateAccount(t, db, "")
	v := dbtest.CreateVerification(t, db, owner.ID, models.VerificationStatusPending)

	got, err := svc.Get(ctx, v.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = svc.Get(ctx, v.ID, other.ID)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = svc.Get(ctx, v.ID+1000, owner.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestListNewestFirst(t *testing.T) {
	svc, db, _ := newTestService(t)
	acc := dbtest.CreateAccount(t, db, "")
	other := dbtest.CreateAccount(t, db, "")

	first := dbtest.CreateVerification(t, db, acc.ID, models.VerificationStatusPending)
	second := dbtest.CreateVerification(t, db, acc.ID, models.VerificationStatusCompleted)
	dbtest.CreateVerification(t, db, other.ID, models.VerificationStatusPending)

	list, err := svc.List(context.Background(), acc.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestTransition(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	acc := dbtest.CreateAccount(t, db, "")
	v := dbtest.CreateVerification(t, db, acc.ID, models.VerificationStatusPending)

	got, err := svc.Transition(ctx, v.ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	got, err = svc.Transition(ctx, v.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	_, err = svc.Transition(ctx, v.ID, "in_progress")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	_, err = svc.Transition(ctx, v.ID, "canceled")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	_, err = svc.Transition(ctx, v.ID+1000, "completed")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
