package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/skorenev/marketplace/internal/models"
)

// UpsertProviderAccount creates the link on first OAuth login and refreshes
// the stored provider tokens on every subsequent one.
func (r *AuthRepo) UpsertProviderAccount(ctx context.Context, acc *models.ProviderAccount) error {
	var existing models.ProviderAccount
	err := r.DB.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", acc.Provider, acc.ProviderAccountID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.DB.WithContext(ctx).Create(acc).Error
		}
		return err
	}

	return r.DB.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"email":         acc.Email,
		"name":          acc.Name,
		"access_token":  acc.AccessToken,
		"refresh_token": acc.RefreshToken,
		"expires_at":    acc.ExpiresAt,
	}).Error
}

func (r *AuthRepo) FindProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.ProviderAccount, error) {
	var acc models.ProviderAccount
	err := r.DB.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&acc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}
