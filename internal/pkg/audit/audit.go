// Package audit records billing-relevant actions. Recording is fire and
// forget: failures are logged and never reach the caller.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

// Actions
const (
	ActionVerificationCancel = "verification.cancel"
	ActionVerificationCreate = "verification.create"
)

// Record is one audit entry.
type Record struct {
	Action       string
	ResourceType string
	ResourceID   string
	AccountID    uint
	Metadata     map[string]interface{}
	IPAddress    string
	UserAgent    string
}

// ResourceIDFromUint formats a numeric id for Record.ResourceID.
func ResourceIDFromUint(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Sink accepts audit records.
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// DBSink writes audit_logs rows.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Record(ctx context.Context, rec Record) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		log.Errorf("[Audit] encode metadata for %s %s/%s: %v", rec.Action, rec.ResourceType, rec.ResourceID, err)
		meta = []byte("{}")
	}

	row := &models.AuditLog{
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		AccountID:    rec.AccountID,
		Metadata:     datatypes.JSON(meta),
		IPAddress:    truncate(rec.IPAddress, 45),
		UserAgent:    truncate(rec.UserAgent, 255),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		log.Errorf("[Audit] write %s %s/%s: %v", rec.Action, rec.ResourceType, rec.ResourceID, err)
	}
}

// NopSink drops every record.
type NopSink struct{}

func (NopSink) Record(context.Context, Record) {}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
