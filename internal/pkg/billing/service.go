package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/entitlements"
)

// Service keeps local subscription, payment and customer state in step with the processor.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Account loads an account by id.
func (s *Service) Account(ctx context.Context, accountID uint) (*models.Account, error) {
	return s.repo.FindAccount(ctx, accountID)
}

// ActiveSubscription returns the account's active subscription, or nil.
func (s *Service) ActiveSubscription(ctx context.Context, accountID uint) (*models.Subscription, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, accountID)
	if err != nil || !sub.IsActive() {
		return nil, err
	}
	return sub, nil
}

// ResolveAccount finds the account an event belongs to: the account_id from
// processor metadata first, then the processor customer id. It returns nil
// without error when neither matches.
func (s *Service) ResolveAccount(ctx context.Context, metadataAccountID, customerID string) (*models.Account, error) {
	if raw := strings.TrimSpace(metadataAccountID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil && id > 0 {
			account, err := s.repo.FindAccount(ctx, uint(id))
			if err == nil {
				return account, nil
			}
			if !apperrors.IsNotFound(err) {
				return nil, err
			}
		}
		log.Warnf("[Reconciler] metadata account_id %q does not match an account", raw)
	}

	account, err := s.repo.FindAccountByCustomerID(ctx, strings.TrimSpace(customerID))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// BackfillCustomerID records the processor customer id on an account that has none.
// Failures are logged, not returned.
func (s *Service) BackfillCustomerID(ctx context.Context, accountID uint, customerID string) {
	updated, err := s.repo.BackfillCustomerID(ctx, accountID, strings.TrimSpace(customerID))
	if err != nil {
		log.Warnf("[Reconciler] backfill customer %s for account %d: %v", customerID, accountID, err)
		return
	}
	if updated {
		log.Infof("[Reconciler] linked customer %s to account %d", customerID, accountID)
	}
}

// SyncSubscription upserts processor subscription data keyed by its processor id.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.Subscription, error) {
	subID := strings.TrimSpace(in.StripeSubscriptionID)
	if in.AccountID == 0 || subID == "" {
		return nil, errors.New("account_id and stripe_subscription_id are required")
	}

	sub := &models.Subscription{
		AccountID:            in.AccountID,
		StripeSubscriptionID: subID,
		StripeCustomerID:     strings.TrimSpace(in.StripeCustomerID),
		PlanTier:             string(entitlements.NormalizePlan(in.PlanTier)),
		Status:               normalizeStatus(in.Status),
		CurrentPeriodStart:   normalizeTimePtr(in.CurrentPeriodStart),
		CurrentPeriodEnd:     normalizeTimePtr(in.CurrentPeriodEnd),
		CancelAtPeriodEnd:    in.CancelAtPeriodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// MarkSubscriptionStatus sets the status of a known subscription. It reports
// false when the subscription is unknown or already in that status.
func (s *Service) MarkSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error) {
	subID := strings.TrimSpace(stripeSubscriptionID)
	if subID == "" {
		return false, errors.New("stripe_subscription_id is required")
	}
	return s.repo.SetSubscriptionStatus(ctx, subID, normalizeStatus(status))
}

// CreatePendingPayment stores the payment row for a freshly created checkout session.
func (s *Service) CreatePendingPayment(ctx context.Context, accountID uint, sessionID string, amountCents int64, currency string) (*models.OneTimePayment, error) {
	if accountID == 0 || strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("account_id and checkout session id are required")
	}
	p := &models.OneTimePayment{
		AccountID:               accountID,
		StripeCheckoutSessionID: strings.TrimSpace(sessionID),
		AmountCents:             amountCents,
		Currency:                strings.ToLower(currency),
	}
	if err := s.repo.CreatePendingPayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteOneTimePayment marks the payment for a checkout session completed.
// The bool is false when the payment was already completed.
func (s *Service) CompleteOneTimePayment(ctx context.Context, sessionID, paymentIntentID string, completedAt time.Time) (*models.OneTimePayment, bool, error) {
	payment, err := s.repo.FindPaymentBySession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, false, err
	}
	updated, err := s.repo.CompletePayment(ctx, payment.StripeCheckoutSessionID, strings.TrimSpace(paymentIntentID), completedAt)
	if err != nil {
		return payment, false, err
	}
	return payment, updated, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

// FailedWebhookEvents lists events that need another processing attempt.
func (s *Service) FailedWebhookEvents(ctx context.Context, limit int, staleBefore time.Time) ([]models.BillingWebhookEvent, error) {
	return s.repo.ListFailedWebhookEvents(ctx, limit, staleBefore)
}

func normalizeTimePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC().Truncate(time.Second)
	return &v
}
