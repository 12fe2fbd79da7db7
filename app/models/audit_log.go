package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is an append-only record of a billing-relevant action.
type AuditLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Action       string         `gorm:"type:varchar(64);not null;index" json:"action"`
	ResourceType string         `gorm:"type:varchar(64);not null;index:idx_audit_logs_resource,priority:1" json:"resource_type"`
	ResourceID   string         `gorm:"type:varchar(64);not null;index:idx_audit_logs_resource,priority:2" json:"resource_id"`
	AccountID    uint           `gorm:"index" json:"account_id"`
	Metadata     datatypes.JSON `json:"metadata"`
	IPAddress    string         `gorm:"type:varchar(45);default:''" json:"ip_address"`
	UserAgent    string         `gorm:"type:varchar(255);default:''" json:"user_agent"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
