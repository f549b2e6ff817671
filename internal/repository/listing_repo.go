package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
)

// ==================== 接口定义 ====================

// ListingRepository 刊登仓储
type ListingRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*model.Listing, error)
	// GetByProduct 按商品查刊登，不存在时返回 (nil, nil)
	GetByProduct(ctx context.Context, productID int64) (*model.Listing, error)
	// LoadOrInit 显式的"取或建"：不存在则建 PENDING 行，created 标记是否新建
	LoadOrInit(ctx context.Context, productID int64) (listing *model.Listing, created bool, err error)

	Update(ctx context.Context, listing *model.Listing) error
	// UpdateFields 单行多字段原子更新
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	// MarkActive 发布成功的终态写入：remote_id + ACTIVE + last_synced_at，一次完成
	MarkActive(ctx context.Context, id int64, remoteID string, syncedAt time.Time) error
	// MarkError 失败落档，下一轮批次可见可重试
	MarkError(ctx context.Context, id int64, message string) error
	// HardDelete 物理删除 (仅 Close 流程在远端确认关闭后调用)
	HardDelete(ctx context.Context, id int64) error

	// 工作集查询，全部按 id 稳定排序
	ListPublishable(ctx context.Context, limit int) ([]model.Listing, error)
	ListActive(ctx context.Context, limit int) ([]model.Listing, error)
	ListActiveOutOfStock(ctx context.Context) ([]model.Listing, error)
	ListPausedBefore(ctx context.Context, cutoff time.Time) ([]model.Listing, error)

	WithTx(tx *gorm.DB) ListingRepository
	Transaction(ctx context.Context, fn func(txRepo ListingRepository) error) error
}

// ==================== 仓储实现 ====================

type listingRepo struct {
	db *gorm.DB
}

// NewListingRepository 创建刊登仓储
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepo{db: db}
}

func (r *listingRepo) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).
		Preload("Product").
		First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) GetByRemoteID(ctx context.Context, remoteID string) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("remote_id = ?", remoteID).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) GetByProduct(ctx context.Context, productID int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) LoadOrInit(ctx context.Context, productID int64) (*model.Listing, bool, error) {
	existing, err := r.GetByProduct(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	listing := &model.Listing{
		ProductID: productID,
		Status:    model.ListingStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

func (r *listingRepo) Update(ctx context.Context, listing *model.Listing) error {
	return r.db.WithContext(ctx).Save(listing).Error
}

func (r *listingRepo) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *listingRepo) MarkActive(ctx context.Context, id int64, remoteID string, syncedAt time.Time) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"remote_id":      remoteID,
		"status":         model.ListingStatusActive,
		"last_synced_at": syncedAt,
		"last_error":     "",
	})
}

func (r *listingRepo) MarkError(ctx context.Context, id int64, message string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"status":     model.ListingStatusError,
		"last_error": message,
	})
}

func (r *listingRepo) HardDelete(ctx context.Context, id int64) error {
	// Unscoped: product_id 上有唯一索引，软删行会挡住同商品重建
	return r.db.WithContext(ctx).Unscoped().Delete(&model.Listing{}, id).Error
}

// ListPublishable 发布工作集：从未成功创建远端 (remote_id 为空) 且有货的
// PENDING/ERROR 刊登。ERROR 行自动回到工作集，无需人工干预
func (r *listingRepo) ListPublishable(ctx context.Context, limit int) ([]model.Listing, error) {
	var listings []model.Listing
	q := r.db.WithContext(ctx).
		Preload("Product").
		Where("status IN ?", []model.ListingStatus{model.ListingStatusPending, model.ListingStatusError}).
		Where("remote_id = ''").
		Where("available_quantity > 0").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&listings).Error
	return listings, err
}

func (r *listingRepo) ListActive(ctx context.Context, limit int) ([]model.Listing, error) {
	var listings []model.Listing
	q := r.db.WithContext(ctx).
		Preload("Product").
		Where("status = ?", model.ListingStatusActive).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&listings).Error
	return listings, err
}

func (r *listingRepo) ListActiveOutOfStock(ctx context.Context) ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("status = ? AND available_quantity = 0", model.ListingStatusActive).
		Order("id ASC").
		Find(&listings).Error
	return listings, err
}

func (r *listingRepo) ListPausedBefore(ctx context.Context, cutoff time.Time) ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("status = ? AND updated_at < ?", model.ListingStatusPaused, cutoff).
		Order("id ASC").
		Find(&listings).Error
	return listings, err
}

func (r *listingRepo) WithTx(tx *gorm.DB) ListingRepository {
	return &listingRepo{db: tx}
}

func (r *listingRepo) Transaction(ctx context.Context, fn func(txRepo ListingRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
