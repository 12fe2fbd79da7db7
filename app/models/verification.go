package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	VerificationStatusPending    = "pending"
	VerificationStatusInProgress = "in_progress"
	VerificationStatusCompleted  = "completed"
	VerificationStatusFailed     = "failed"
	VerificationStatusExpired    = "expired"
	VerificationStatusCanceled   = "canceled"
)

// CancelableVerificationStatuses are the only states a verification can be canceled from.
var CancelableVerificationStatuses = []string{VerificationStatusPending, VerificationStatusInProgress}

// Verification is a requested bank-verified income report.
type Verification struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AccountID      uint       `gorm:"not null;index" json:"account_id"`
	SubjectName    string     `gorm:"type:varchar(150);not null" json:"subject_name" validate:"required,min=2,max=150"`
	SubjectEmail   string     `gorm:"type:varchar(200);not null" json:"subject_email" validate:"required,email,max=200"`
	RequesterName  string     `gorm:"type:varchar(150);default:''" json:"requester_name" validate:"max=150"`
	RequesterEmail string     `gorm:"type:varchar(200);default:''" json:"requester_email" validate:"omitempty,email,max=200"`
	Purpose        string     `gorm:"type:text" json:"purpose" validate:"max=2000"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" validate:"oneof=pending in_progress completed failed expired canceled"`
	CanceledAt     *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CompletedAt    *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (v *Verification) Validate() error {
	val := validator.New()

	return val.Struct(v)
}

// IsCancelable reports whether a verification in the given status may be canceled.
func IsCancelable(status string) bool {
	for _, s := range CancelableVerificationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalVerificationStatus reports whether no further transition is allowed.
func IsTerminalVerificationStatus(status string) bool {
	switch status {
	case VerificationStatusCompleted, VerificationStatusFailed, VerificationStatusExpired, VerificationStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionVerification reports whether from -> to is a permitted forward move.
// Cancellation is excluded here; it goes through the reversal path only.
func CanTransitionVerification(from, to string) bool {
	switch from {
	case VerificationStatusPending:
		switch to {
		case VerificationStatusInProgress, VerificationStatusCompleted, VerificationStatusFailed, VerificationStatusExpired:
			return true
		}
	case VerificationStatusInProgress:
		switch to {
		case VerificationStatusCompleted, VerificationStatusFailed, VerificationStatusExpired:
			return true
		}
	}
	return false
}
