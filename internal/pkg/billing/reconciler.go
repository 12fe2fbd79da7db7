package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
)

// Processor event types the reconciler acts on.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventCheckoutCompleted       = "checkout.session.completed"
)

const replayStaleAfter = 5 * time.Minute

// Reconciler applies signed processor webhooks to local billing state. Every
// handler is safe to run more than once for the same event.
type Reconciler struct {
	svc           *Service
	webhookSecret string
	now           func() time.Time
}

func NewReconciler(svc *Service, webhookSecret string) *Reconciler {
	return &Reconciler{svc: svc, webhookSecret: webhookSecret, now: time.Now}
}

// HandleWebhook verifies, records and applies one delivery. Signature failures
// return invalid_signature before anything is stored. A processing error is
// stored on the event and returned so the processor redelivers.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, r.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidSignature, "webhook signature verification failed", err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}

	_, stored, err := r.svc.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event %s: %w", event.ID, err)
	}
	if stored.IsSettled() {
		log.Infof("[Reconciler] duplicate delivery of %s (%s)", event.ID, event.Type)
		result.Duplicate = true
		return result, nil
	}

	handled, applyErr := r.Apply(ctx, event)
	result.Ignored = !handled

	if err := r.svc.MarkWebhookProcessed(ctx, stored.ID, applyErr); err != nil {
		log.Errorf("[Reconciler] mark event %s processed: %v", event.ID, err)
		if applyErr == nil {
			return nil, fmt.Errorf("mark webhook event %s: %w", event.ID, err)
		}
	}
	if applyErr != nil {
		log.Errorf("[Reconciler] %s (%s) failed: %v", event.ID, event.Type, applyErr)
		return nil, applyErr
	}
	return result, nil
}

// Apply mutates local state for a verified event. It reports false for event
// types it does not act on.
func (r *Reconciler) Apply(ctx context.Context, event stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, fmt.Errorf("event %s has no data", event.ID)
	}

	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return true, fmt.Errorf("decode subscription: %w", err)
		}
		return true, r.applySubscription(ctx, &sub)

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return true, fmt.Errorf("decode subscription: %w", err)
		}
		return true, r.applyStatus(ctx, sub.ID, models.SubscriptionStatusCanceled)

	case EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return true, fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return false, nil
		}
		return true, r.applyStatus(ctx, inv.Subscription.ID, models.SubscriptionStatusPastDue)

	case EventInvoicePaymentSucceeded:
		// the accompanying subscription update carries the new state
		return true, nil

	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return true, fmt.Errorf("decode checkout session: %w", err)
		}
		if cs.Mode != stripe.CheckoutSessionModePayment {
			return false, nil
		}
		return true, r.applyCheckoutCompleted(ctx, &cs, time.Unix(event.Created, 0))

	default:
		return false, nil
	}
}

func (r *Reconciler) applySubscription(ctx context.Context, sub *stripe.Subscription) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	account, err := r.svc.ResolveAccount(ctx, sub.Metadata["account_id"], customerID)
	if err != nil {
		return err
	}
	if account == nil {
		log.Warnf("[Reconciler] no account for subscription %s (customer %s), dropping", sub.ID, customerID)
		return nil
	}

	var priceTags []string
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				priceTags = append(priceTags, item.Price.Metadata["plan"])
			}
		}
	}

	in := NormalizedSubscription{
		AccountID:            account.ID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     customerID,
		PlanTier:             string(ResolvePlanTier(priceTags, sub.Metadata["plan"])),
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0)
		in.CurrentPeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		in.CurrentPeriodEnd = &t
	}

	stored, err := r.svc.SyncSubscription(ctx, in)
	if err != nil {
		return err
	}
	log.Infof("[Reconciler] subscription %s for account %d is %s (%s)", stored.StripeSubscriptionID, account.ID, stored.Status, stored.PlanTier)

	r.svc.BackfillCustomerID(ctx, account.ID, customerID)
	return nil
}

func (r *Reconciler) applyStatus(ctx context.Context, stripeSubscriptionID, status string) error {
	if stripeSubscriptionID == "" {
		return nil
	}
	changed, err := r.svc.MarkSubscriptionStatus(ctx, stripeSubscriptionID, status)
	if err != nil {
		return err
	}
	if changed {
		log.Infof("[Reconciler] subscription %s is now %s", stripeSubscriptionID, status)
	}
	return nil
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession, completedAt time.Time) error {
	intentID := ""
	if cs.PaymentIntent != nil {
		intentID = cs.PaymentIntent.ID
	}
	if completedAt.IsZero() || completedAt.Unix() <= 0 {
		completedAt = r.now()
	}

	payment, updated, err := r.svc.CompleteOneTimePayment(ctx, cs.ID, intentID, completedAt)
	if err != nil {
		if apperrors.IsNotFound(err) {
			log.Warnf("[Reconciler] no payment row for checkout session %s, dropping", cs.ID)
			return nil
		}
		return err
	}
	if updated {
		log.Infof("[Reconciler] payment %d for account %d completed", payment.ID, payment.AccountID)
	}

	if cs.Customer != nil {
		r.svc.BackfillCustomerID(ctx, payment.AccountID, cs.Customer.ID)
	}
	return nil
}

// ReplayFailed re-applies stored events whose processing failed. Events that
// still fail keep their error for the next run.
func (r *Reconciler) ReplayFailed(ctx context.Context, limit int) (ReplaySummary, error) {
	var summary ReplaySummary

	events, err := r.svc.FailedWebhookEvents(ctx, limit, r.now().Add(-replayStaleAfter))
	if err != nil {
		return summary, fmt.Errorf("list failed webhook events: %w", err)
	}

	for _, stored := range events {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Attempted++

		var event stripe.Event
		applyErr := json.Unmarshal([]byte(stored.PayloadJSON), &event)
		if applyErr == nil {
			_, applyErr = r.Apply(ctx, event)
		}
		if err := r.svc.MarkWebhookProcessed(ctx, stored.ID, applyErr); err != nil {
			log.Errorf("[Reconciler] mark replayed event %s: %v", stored.ProviderEventID, err)
		}
		if applyErr != nil {
			summary.Failed++
			log.Warnf("[Reconciler] replay of %s (%s) failed: %v", stored.ProviderEventID, stored.EventType, applyErr)
			continue
		}
		summary.Succeeded++
	}

	if summary.Attempted > 0 {
		log.Infof("[Reconciler] replayed %d events: %d ok, %d failed", summary.Attempted, summary.Succeeded, summary.Failed)
	}
	return summary, nil
}
