package repository

import (
	"context"

	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
)

// ==================== 接口定义 ====================

// ProductAvailability 批量列表视图的行：商品 + 数据库侧聚合出的可售数量
// 聚合表达式必须与 StockService 的内存计算对任意输入一致
type ProductAvailability struct {
	model.Product
	AvailableQuantity int
}

// ProductRepository 目录商品读仓储
// 目录主存储归外部系统所有，这里只承载发布引擎需要的读写窄面
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	GetByCode(ctx context.Context, code string) (*model.Product, error)
	// ListEligible 批量候选查询，谓词由 EligibilityService 以 scope 形式下推
	ListEligible(ctx context.Context, scope func(*gorm.DB) *gorm.DB, limit int) ([]model.Product, error)
	// ListWithAvailability 带库存聚合的批量视图
	ListWithAvailability(ctx context.Context, limit, offset int) ([]ProductAvailability, error)
}

// ==================== 仓储实现 ====================

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetByCode(ctx context.Context, code string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) ListEligible(ctx context.Context, scope func(*gorm.DB) *gorm.DB, limit int) ([]model.Product, error) {
	var products []model.Product
	q := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Scopes(scope).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&products).Error
	return products, err
}

func (r *productRepo) ListWithAvailability(ctx context.Context, limit, offset int) ([]ProductAvailability, error) {
	var rows []ProductAvailability
	q := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Select("products.*, " + model.StockQuantitySQL() + " AS available_quantity").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Scan(&rows).Error
	return rows, err
}
