package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meli_sync_v1_202601/internal/model"
)

// ==================== 接口定义 ====================

// TokenRepository 凭证仓储
type TokenRepository interface {
	GetByAccount(ctx context.Context, accountID int64, environment string) (*model.MeliToken, error)
	Save(ctx context.Context, token *model.MeliToken) error
	// Upsert 按 (account_id, environment) 幂等落库，支持重复授权
	Upsert(ctx context.Context, token *model.MeliToken) error
}

// ==================== 仓储实现 ====================

type tokenRepo struct {
	db *gorm.DB
}

// NewTokenRepository 创建凭证仓储
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepo{db: db}
}

func (r *tokenRepo) GetByAccount(ctx context.Context, accountID int64, environment string) (*model.MeliToken, error) {
	var token model.MeliToken
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND environment = ?", accountID, environment).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepo) Save(ctx context.Context, token *model.MeliToken) error {
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *tokenRepo) Upsert(ctx context.Context, token *model.MeliToken) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "updated_at",
		}),
	}).Create(token).Error
}
