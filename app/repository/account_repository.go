package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create validates and inserts an account
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if err := account.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByAPIKeyHash resolves an API key hash to its account.
func (r *accountRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	if err := r.db.WithContext(ctx).Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// TouchAPIKey refreshes the last-used timestamp.
func (r *accountRepository) TouchAPIKey(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumn("api_key_last_used_at", time.Now().UTC()).Error
}

// RotateAPIKey replaces the account's key and returns the new raw key.
func (r *accountRepository) RotateAPIKey(ctx context.Context, id uint) (string, error) {
	account, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	raw, err := account.IssueAPIKey()
	if err != nil {
		return "", err
	}
	err = r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(map[string]interface{}{
		"api_key_hash":         account.APIKeyHash,
		"api_key_prefix":       account.APIKeyPrefix,
		"api_key_last_used_at": nil,
	}).Error
	if err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	return raw, nil
}

// List returns accounts ordered by id.
func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]models.Account, error) {
	if limit <= 0 {
		limit = 50
	}
	var accounts []models.Account
	err := r.db.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, err
}
