package ledger

import (
	"fmt"
	"time"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

// SourceKind discriminates what paid for a unit of usage.
type SourceKind string

const (
	KindSubscription SourceKind = models.LedgerSourceSubscription
	KindPayg         SourceKind = models.LedgerSourcePayg
)

// Source is what a ledger entry is paid from. The only implementations are
// SubscriptionSource and PaygSource; code that switches on a Source handles both
// and rejects anything else.
type Source interface {
	Kind() SourceKind
	isSource()
}

// SubscriptionSource counts against a subscription's current period quota.
type SubscriptionSource struct {
	SubscriptionID       uint
	StripeSubscriptionID string
	StripeCustomerID     string
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// PaygSource consumes one completed one-time payment.
type PaygSource struct {
	PaymentID   uint
	AmountCents int64
}

func (SubscriptionSource) Kind() SourceKind { return KindSubscription }
func (SubscriptionSource) isSource()        {}

func (PaygSource) Kind() SourceKind { return KindPayg }
func (PaygSource) isSource()        {}

// SourceOf decodes the source recorded on an entry.
func SourceOf(entry *models.UsageLedgerEntry) (Source, error) {
	if entry == nil {
		return nil, fmt.Errorf("ledger: nil entry")
	}
	switch SourceKind(entry.Source) {
	case KindSubscription:
		if entry.StripeSubscriptionID == nil || entry.PeriodStart == nil || entry.PeriodEnd == nil {
			return nil, fmt.Errorf("ledger: subscription entry %d is missing period context", entry.ID)
		}
		src := SubscriptionSource{
			StripeSubscriptionID: *entry.StripeSubscriptionID,
			PeriodStart:          entry.PeriodStart.UTC(),
			PeriodEnd:            entry.PeriodEnd.UTC(),
		}
		if entry.SubscriptionID != nil {
			src.SubscriptionID = *entry.SubscriptionID
		}
		return src, nil
	case KindPayg:
		if entry.OneTimePaymentID == nil {
			return nil, fmt.Errorf("ledger: payg entry %d has no payment", entry.ID)
		}
		return PaygSource{PaymentID: *entry.OneTimePaymentID}, nil
	default:
		return nil, fmt.Errorf("ledger: unknown source %q on entry %d", entry.Source, entry.ID)
	}
}

// apply writes the source columns onto a new entry.
func apply(entry *models.UsageLedgerEntry, src Source) error {
	switch s := src.(type) {
	case SubscriptionSource:
		if s.StripeSubscriptionID == "" {
			return fmt.Errorf("ledger: subscription source requires an external subscription id")
		}
		start, end := NormalizeTime(s.PeriodStart), NormalizeTime(s.PeriodEnd)
		subID := s.StripeSubscriptionID
		entry.Source = string(KindSubscription)
		entry.StripeSubscriptionID = &subID
		entry.PeriodStart = &start
		entry.PeriodEnd = &end
		if s.SubscriptionID != 0 {
			id := s.SubscriptionID
			entry.SubscriptionID = &id
		}
		return nil
	case PaygSource:
		if s.PaymentID == 0 {
			return fmt.Errorf("ledger: payg source requires a payment id")
		}
		id := s.PaymentID
		entry.Source = string(KindPayg)
		entry.OneTimePaymentID = &id
		return nil
	default:
		return fmt.Errorf("ledger: unsupported source %T", src)
	}
}

// NormalizeTime converts to UTC at whole-second precision, the precision the
// processor reports period bounds in.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
