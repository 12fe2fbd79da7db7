// Package reversal cancels verifications and undoes their billing effect
// exactly once: the ledger entry is reversed and, for pay-as-you-go credit,
// the consumed payment is released for reuse.
package reversal

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
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
)

type CancelRequest struct {
	VerificationID uint
	AccountID      uint
	IP             string
	UserAgent      string
}

type CancelResult struct {
	Success        bool   `json:"success"`
	CreditRefunded bool   `json:"credit_refunded"`
	Source         string `json:"source"`
}

type Coordinator struct {
	db    *gorm.DB
	audit audit.Sink
	now   func() time.Time
}

func NewCoordinator(db *gorm.DB, sink audit.Sink) *Coordinator {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Coordinator{db: db, audit: sink, now: time.Now}
}

// Cancel moves a pending or in-progress verification to canceled and reverses
// its ledger entry. All writes share one transaction; the audit record is
// written after commit.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	var (
		result   = &CancelResult{Success: true}
		previous string
		meta     = map[string]interface{}{}
	)

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v models.Verification
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&v, req.VerificationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if v.AccountID != req.AccountID {
			return apperrors.ErrForbidden
		}
		if !models.IsCancelable(v.Status) {
			return apperrors.ErrInvalidState.WithDetails(map[string]interface{}{"current_status": v.Status})
		}
		previous = v.Status
		meta = map[string]interface{}{"previous_status": previous}

		l := ledger.New(tx)
		entry, err := l.FindActiveFor(ctx, v.ID)
		if err != nil {
			return err
		}
		if entry != nil {
			refunded, err := c.reverseEntry(ctx, tx, l, entry, meta)
			if err != nil {
				return err
			}
			result.Source = entry.Source
			result.CreditRefunded = refunded
		}

		now := c.now().UTC()
		res := tx.Model(&models.Verification{}).
			Where("id = ? AND status IN ?", v.ID, models.CancelableVerificationStatuses).
			Updates(map[string]interface{}{
				"status":      models.VerificationStatusCanceled,
				"canceled_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("cancel verification %d: %w", v.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.Verification
			if err := tx.Select("status").First(&current, v.ID).Error; err != nil {
				return err
			}
			if current.Status == models.VerificationStatusCanceled {
				// the ledger guard already let exactly one canceler refund
				log.Infof("[Reversal] verification %d already canceled concurrently", v.ID)
				return nil
			}
			return apperrors.ErrInvalidState.WithDetails(map[string]interface{}{"current_status": current.Status})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta["credit_refunded"] = result.CreditRefunded
	if result.Source != "" {
		meta["source"] = result.Source
	}
	c.audit.Record(ctx, audit.Record{
		Action:       audit.ActionVerificationCancel,
		ResourceType: "verification",
		ResourceID:   audit.ResourceIDFromUint(req.VerificationID),
		AccountID:    req.AccountID,
		Metadata:     meta,
		IPAddress:    req.IP,
		UserAgent:    req.UserAgent,
	})
	return result, nil
}

// reverseEntry reverses entry and, for payg, releases its payment. meta is
// extended with the source identifiers. It reports whether this call did the
// reversal.
func (c *Coordinator) reverseEntry(ctx context.Context, tx *gorm.DB, l *ledger.Ledger, entry *models.UsageLedgerEntry, meta map[string]interface{}) (bool, error) {
	src, err := ledger.SourceOf(entry)
	if err != nil {
		return false, err
	}

	switch s := src.(type) {
	case ledger.SubscriptionSource:
		meta["stripe_subscription_id"] = s.StripeSubscriptionID
		meta["period_start"] = s.PeriodStart.Format(time.RFC3339)
		meta["period_end"] = s.PeriodEnd.Format(time.RFC3339)
	case ledger.PaygSource:
		meta["payment_id"] = s.PaymentID
		var payment models.OneTimePayment
		if err := tx.Select("id", "amount_cents").First(&payment, s.PaymentID).Error; err == nil {
			meta["amount_cents"] = payment.AmountCents
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
	}

	reversed, err := l.Reverse(ctx, entry.ID, models.ReversalReasonVerificationCanceled, meta)
	if err != nil {
		return false, err
	}
	if !reversed {
		log.Infof("[Reversal] ledger entry %d already reversed", entry.ID)
		return false, nil
	}

	if s, ok := src.(ledger.PaygSource); ok {
		res := tx.Model(&models.OneTimePayment{}).
			Where("id = ? AND status = ? AND verification_id = ?", s.PaymentID, models.PaymentStatusCompleted, entry.VerificationID).
			Updates(map[string]interface{}{
				"verification_id": nil,
				"applied_at":      nil,
				"updated_at":      c.now().UTC(),
			})
		if res.Error != nil {
			return false, fmt.Errorf("release payment %d: %w", s.PaymentID, res.Error)
		}
		if res.RowsAffected == 0 {
			log.Warnf("[Reversal] payment %d was not applied to verification %d", s.PaymentID, entry.VerificationID)
		}
	}
	return true, nil
}
