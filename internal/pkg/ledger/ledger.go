// Package ledger is the durable record of consumed and refunded usage. It is
// the source of truth for subscription period usage and for whether a
// verification has already been paid for.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

// Ledger reads and writes usage_ledger_entries.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// WithTx returns a ledger bound to an open transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, now: l.now}
}

// Record inserts one active entry for the verification.
func (l *Ledger) Record(ctx context.Context, verificationID, accountID uint, src Source) (*models.UsageLedgerEntry, error) {
	if verificationID == 0 || accountID == 0 {
		return nil, errors.New("ledger: verification_id and account_id are required")
	}
	entry := &models.UsageLedgerEntry{
		VerificationID: verificationID,
		AccountID:      accountID,
	}
	if err := apply(entry, src); err != nil {
		return nil, err
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("ledger: record entry: %w", err)
	}
	return entry, nil
}

// FindActiveFor returns the unreversed entry for a verification, or nil when there is none.
func (l *Ledger) FindActiveFor(ctx context.Context, verificationID uint) (*models.UsageLedgerEntry, error) {
	var entry models.UsageLedgerEntry
	err := l.db.WithContext(ctx).
		Where("verification_id = ? AND reversed_at IS NULL", verificationID).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: find active entry: %w", err)
	}
	return &entry, nil
}

// CountActiveInPeriod counts unreversed subscription entries recorded against
// exactly this subscription period.
func (l *Ledger) CountActiveInPeriod(ctx context.Context, stripeSubscriptionID string, start, end time.Time) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.UsageLedgerEntry{}).
		Where("source = ? AND stripe_subscription_id = ? AND period_start = ? AND period_end = ? AND reversed_at IS NULL",
			string(KindSubscription), stripeSubscriptionID, NormalizeTime(start), NormalizeTime(end)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("ledger: count period usage: %w", err)
	}
	return n, nil
}

// Reverse marks an entry reversed if it is still active. It reports false when
// another caller reversed it first.
func (l *Ledger) Reverse(ctx context.Context, entryID uint, reason string, metadata map[string]interface{}) (bool, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("ledger: encode reversal metadata: %w", err)
	}
	now := l.now().UTC()
	tx := l.db.WithContext(ctx).Model(&models.UsageLedgerEntry{}).
		Where("id = ? AND reversed_at IS NULL", entryID).
		Updates(map[string]interface{}{
			"reversed_at":       now,
			"reversal_reason":   reason,
			"reversal_metadata": datatypes.JSON(raw),
			"updated_at":        now,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("ledger: reverse entry %d: %w", entryID, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// ListForAccount returns the account's entries, newest first.
func (l *Ledger) ListForAccount(ctx context.Context, accountID uint, limit int) ([]models.UsageLedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.UsageLedgerEntry
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	return entries, nil
}
