// Package verification owns the verification lifecycle: creation against the
// account's quota or credit, reads, and forward status transitions.
// Cancellation lives in the reversal package.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/apperrors"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/audit"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
)

// UsageReporter receives one report per created verification.
type UsageReporter interface {
	Report(ctx context.Context, accountID, verificationID uint, customerID string)
}

// CreateInput is a request for a new verification.
type CreateInput struct {
	AccountID      uint
	SubjectName    string
	SubjectEmail   string
	RequesterName  string
	RequesterEmail string
	Purpose        string
	IP             string
	UserAgent      string
}

// CreateResult is a created verification and what paid for it.
type CreateResult struct {
	Verification  *models.Verification `json:"verification"`
	Source        string               `json:"source"`
	LedgerEntryID uint                 `json:"ledger_entry_id"`
	Decision      *quota.Decision      `json:"decision"`
}

type Service struct {
	db        *gorm.DB
	evaluator *quota.Evaluator
	ledger    *ledger.Ledger
	reporter  UsageReporter
	audit     audit.Sink
	now       func() time.Time
}

func NewService(db *gorm.DB, evaluator *quota.Evaluator, reporter UsageReporter, sink audit.Sink) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{
		db:        db,
		evaluator: evaluator,
		ledger:    ledger.New(db),
		reporter:  reporter,
		audit:     sink,
		now:       time.Now,
	}
}

// Create evaluates the account and, when allowed, stores the verification,
// applies the pay-as-you-go payment if that is the source, and records the
// ledger entry, all in one transaction. Usage is reported after commit.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	v := &models.Verification{
		AccountID:      in.AccountID,
		SubjectName:    strings.TrimSpace(in.SubjectName),
		SubjectEmail:   strings.TrimSpace(in.SubjectEmail),
		RequesterName:  strings.TrimSpace(in.RequesterName),
		RequesterEmail: strings.TrimSpace(in.RequesterEmail),
		Purpose:        strings.TrimSpace(in.Purpose),
		Status:         models.VerificationStatusPending,
	}
	if err := v.Validate(); err != nil {
		return nil, validationError(err)
	}

	var (
		result     *CreateResult
		customerID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account, in.AccountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.CodeNotFound, "account not found", err)
			}
			return err
		}
		customerID = account.StripeCustomerID

		decision, err := s.evaluator.WithTx(tx).Evaluate(ctx, account.ID)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return decision.Err()
		}

		if err := tx.Create(v).Error; err != nil {
			return fmt.Errorf("insert verification: %w", err)
		}

		switch src := decision.Source.(type) {
		case ledger.SubscriptionSource:
			if src.StripeCustomerID != "" {
				customerID = src.StripeCustomerID
			}
		case ledger.PaygSource:
			if err := s.applyPayment(tx, src.PaymentID, v.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported ledger source %T", decision.Source)
		}

		entry, err := s.ledger.WithTx(tx).Record(ctx, v.ID, account.ID, decision.Source)
		if err != nil {
			return err
		}

		result = &CreateResult{
			Verification:  v,
			Source:        decision.SourceKind(),
			LedgerEntryID: entry.ID,
			Decision:      decision,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.reporter != nil {
		s.reporter.Report(ctx, in.AccountID, v.ID, customerID)
	}
	s.audit.Record(ctx, audit.Record{
		Action:       audit.ActionVerificationCreate,
		ResourceType: "verification",
		ResourceID:   audit.ResourceIDFromUint(v.ID),
		AccountID:    in.AccountID,
		Metadata: map[string]interface{}{
			"source":          result.Source,
			"ledger_entry_id": result.LedgerEntryID,
		},
		IPAddress: in.IP,
		UserAgent: in.UserAgent,
	})
	return result, nil
}

// applyPayment claims an available payment for the verification. Losing the
// claim to a concurrent creation is reported as payment_required.
func (s *Service) applyPayment(tx *gorm.DB, paymentID, verificationID uint) error {
	now := s.now().UTC()
	res := tx.Model(&models.OneTimePayment{}).
		Where("id = ? AND status = ? AND verification_id IS NULL", paymentID, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"verification_id": verificationID,
			"applied_at":      now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("apply payment %d: %w", paymentID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Warnf("[Verification] payment %d was claimed concurrently", paymentID)
		denial := s.evaluator.PaymentRequired()
		denial.PaymentID = paymentID
		return denial.Err()
	}
	return nil
}

// Get loads a verification owned by accountID.
func (s *Service) Get(ctx context.Context, id, accountID uint) (*models.Verification, error) {
	var v models.Verification
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if v.AccountID != accountID {
		return nil, apperrors.ErrForbidden
	}
	return &v, nil
}

// List returns the account's verifications, newest first.
func (s *Service) List(ctx context.Context, accountID uint, limit int) ([]models.Verification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Verification
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Transition moves a verification forward. Cancellation is refused here; it
// must go through the reversal coordinator so billing is undone.
func (s *Service) Transition(ctx context.Context, id uint, to string) (*models.Verification, error) {
	to = strings.ToLower(strings.TrimSpace(to))
	if to == models.VerificationStatusCanceled {
		return nil, apperrors.New(apperrors.CodeInvalidState, "cancel through the cancellation endpoint")
	}

	var out models.Verification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		from := out.Status
		if !models.CanTransitionVerification(from, to) {
			return apperrors.ErrInvalidState.WithDetails(map[string]interface{}{
				"current_status":   from,
				"requested_status": to,
			})
		}

		now := s.now().UTC()
		updates := map[string]interface{}{"status": to, "updated_at": now}
		if to == models.VerificationStatusCompleted {
			updates["completed_at"] = now
		}
		res := tx.Model(&models.Verification{}).Where("id = ? AND status = ?", id, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrInvalidState.WithDetails(map[string]interface{}{"current_status": from})
		}
		return tx.First(&out, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.CodeValidation, "invalid input", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[toSnake(fe.Field())] = fe.Tag()
	}
	return apperrors.ErrValidation.WithDetails(map[string]interface{}{"fields": fields})
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
