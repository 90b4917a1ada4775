package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
)

// AccountRepositoryImpl implements AccountRepository using GORM
type AccountRepositoryImpl struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepositoryImpl instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &AccountRepositoryImpl{db: db}
}

// Create inserts a new account
func (r *AccountRepositoryImpl) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ValidationErrorf("EMAIL_TAKEN", "an account with this email already exists")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID
func (r *AccountRepositoryImpl) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ACCOUNT_NOT_FOUND", "account %s not found", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetByEmail retrieves an account by email
func (r *AccountRepositoryImpl) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "email = ?", email).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFoundErrorf("ACCOUNT_NOT_FOUND", "no account for email %s", email)
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &account, nil
}

// Update updates an existing account
func (r *AccountRepositoryImpl) Update(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// List retrieves accounts with an optional role filter
func (r *AccountRepositoryImpl) List(ctx context.Context, role string, limit, offset int) ([]*models.Account, int64, error) {
	var accounts []*models.Account
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Account{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	if err := query.Limit(limit).Offset(offset).Order("created_at DESC").Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, total, nil
}

// SoftDelete marks an account deleted
func (r *AccountRepositoryImpl) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFoundErrorf("ACCOUNT_NOT_FOUND", "account %s not found", id)
	}
	return nil
}

// HardDelete permanently removes an account. Maintenance use only.
func (r *AccountRepositoryImpl) HardDelete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Unscoped().Delete(&models.Account{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to hard delete account: %w", err)
	}
	return nil
}
