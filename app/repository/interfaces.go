package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Tariqlearnstocode/appchecker-sub001/app/models"
)

// AccountRepository defines the interface for account-related database operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error)
	TouchAPIKey(ctx context.Context, id uint) error
	RotateAPIKey(ctx context.Context, id uint) (string, error)
	List(ctx context.Context, offset, limit int) ([]models.Account, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account AccountRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account: NewAccountRepository(db),
	}
}
