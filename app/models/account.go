package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Account is the billing owner of verifications, subscriptions and one-time payments.
type Account struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"type:varchar(200);uniqueIndex;not null" json:"email" validate:"required,email,max=200"`
	Name             string     `gorm:"type:varchar(150);default:''" json:"name" validate:"max=150"`
	StripeCustomerID string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	APIKeyHash       string     `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyLastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"api_key_last_used_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "ivk_"

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// HasAPIKey reports whether the account can authenticate with an API key.
func (a *Account) HasAPIKey() bool {
	return a != nil && a.APIKeyHash != ""
}

// IssueAPIKey generates a new key, stores its hash on the struct and returns the raw secret.
// The caller persists the account afterwards; the raw key is never stored.
func (a *Account) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))

	a.APIKeyHash = HashAPIKey(rawKey)
	a.APIKeyPrefix = rawKey[:min(len(rawKey), 12)]
	a.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
