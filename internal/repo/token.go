package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/skorenev/marketplace/internal/models"
)

func (r *AuthRepo) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *AuthRepo) FindRefreshByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// RevokeIfActive flips revoked with a single conditional UPDATE and reports
// whether this call was the one that did it. Two concurrent rotations of the
// same token therefore get exactly one true: the affected-row count is the
// arbiter, not a prior read.
func (r *AuthRepo) RevokeIfActive(ctx context.Context, tokenHash string) (bool, error) {
	result := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", tokenHash, false).
		Update("revoked", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevokeByHash is the best-effort logout variant: revoking a token that does
// not exist or is already revoked is not an error.
func (r *AuthRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (r *AuthRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	return result.RowsAffected, result.Error
}
