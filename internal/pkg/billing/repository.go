package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindAccount(ctx context.Context, id uint) (*models.Account, error)
	FindAccountByCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	BackfillCustomerID(ctx context.Context, accountID uint, customerID string) (bool, error)
	FindActiveSubscription(ctx context.Context, accountID uint) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	SetSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error)
	CreatePendingPayment(ctx context.Context, payment *models.OneTimePayment) error
	FindPaymentBySession(ctx context.Context, sessionID string) (*models.OneTimePayment, error)
	CompletePayment(ctx context.Context, sessionID, paymentIntentID string, completedAt time.Time) (bool, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	ListFailedWebhookEvents(ctx context.Context, limit int, staleBefore time.Time) ([]models.BillingWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, what+" not found", err)
	}
	return err
}

func (r *gormRepository) FindAccount(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, notFound(err, "account")
	}
	return &account, nil
}

func (r *gormRepository) FindAccountByCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	if customerID == "" {
		return nil, apperrors.New(apperrors.CodeNotFound, "account not found")
	}
	var account models.Account
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&account).Error; err != nil {
		return nil, notFound(err, "account")
	}
	return &account, nil
}

// FindActiveSubscription returns the subscription holding the account's
// active slot, or nil when there is none.
func (r *gormRepository) FindActiveSubscription(ctx context.Context, accountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("active_account_id = ?", accountID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// BackfillCustomerID stores the processor customer id on an account that has none yet.
func (r *gormRepository) BackfillCustomerID(ctx context.Context, accountID uint, customerID string) (bool, error) {
	if accountID == 0 || customerID == "" {
		return false, nil
	}
	tx := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND (stripe_customer_id = '' OR stripe_customer_id IS NULL)", accountID).
		Update("stripe_customer_id", customerID)
	return tx.RowsAffected > 0, tx.Error
}

// UpsertSubscription creates or updates a subscription keyed by its processor id.
// The account row is locked for the duration so concurrent events for the same
// account serialize, and an active row may only be written while no other
// subscription of the account holds the active slot.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.ActiveAccountID = models.ActiveSlotFor(sub.AccountID, sub.Status)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, sub.AccountID).Error; err != nil {
			return notFound(err, "account")
		}

		if sub.ActiveAccountID != nil {
			var other models.Subscription
			err := tx.Where("active_account_id = ? AND stripe_subscription_id <> ?", sub.AccountID, sub.StripeSubscriptionID).
				First(&other).Error
			if err == nil {
				return apperrors.ErrInvalidState.WithDetails(map[string]interface{}{
					"account_id":                    sub.AccountID,
					"active_stripe_subscription_id": other.StripeSubscriptionID,
				})
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(sub).Error
		case err != nil:
			return err
		}

		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		return tx.Model(&existing).Select(
			"account_id",
			"stripe_customer_id",
			"plan_tier",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"active_account_id",
			"updated_at",
		).Updates(sub).Error
	})
}

// SetSubscriptionStatus moves a subscription out of its current status. Any
// non-active status releases the account's active slot.
func (r *gormRepository) SetSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status != models.SubscriptionStatusActive {
		updates["active_account_id"] = nil
	}
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("stripe_subscription_id = ? AND status <> ?", stripeSubscriptionID, status).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CreatePendingPayment(ctx context.Context, payment *models.OneTimePayment) error {
	payment.Status = models.PaymentStatusPending
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormRepository) FindPaymentBySession(ctx context.Context, sessionID string) (*models.OneTimePayment, error) {
	var p models.OneTimePayment
	if err := r.db.WithContext(ctx).Where("stripe_checkout_session_id = ?", sessionID).First(&p).Error; err != nil {
		return nil, notFound(err, "payment")
	}
	return &p, nil
}

// CompletePayment flips a pending payment to completed. Redelivery finds it
// completed already and reports false.
func (r *gormRepository) CompletePayment(ctx context.Context, sessionID, paymentIntentID string, completedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":       models.PaymentStatusCompleted,
		"completed_at": completedAt.UTC(),
		"updated_at":   time.Now().UTC(),
	}
	if paymentIntentID != "" {
		updates["stripe_payment_intent_id"] = paymentIntentID
	}
	tx := r.db.WithContext(ctx).Model(&models.OneTimePayment{}).
		Where("stripe_checkout_session_id = ? AND status = ?", sessionID, models.PaymentStatusPending).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + 1"),
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// ListFailedWebhookEvents returns events whose last attempt failed, plus events
// recorded before staleBefore that were never marked processed. Oldest first.
func (r *gormRepository) ListFailedWebhookEvents(ctx context.Context, limit int, staleBefore time.Time) ([]models.BillingWebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.BillingWebhookEvent
	err := r.db.WithContext(ctx).
		Where("processing_error <> '' OR (processed_at IS NULL AND created_at < ?)", staleBefore.UTC()).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
