package service

import (
	"context"
	"log"
	"time"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/meli"
)

// SyncOptions 同步选项
type SyncOptions struct {
	DryRun bool
	// Force 即使与缓存一致也推送完整的重算结果
	Force bool
}

// SyncService 刊登对账
// 重算价格/数量，与刊登上缓存的上次推送值做差，只推送有变化的字段；
// 推送成功后缓存字段一次性原子更新，失败则缓存保持原样
type SyncService struct {
	listingRepo repository.ListingRepository
	productRepo repository.ProductRepository
	auth        *AuthService
	client      *meli.Client
	pricing     *PricingService
	stock       *StockService
	accountID   int64

	now func() time.Time
}

// NewSyncService 创建同步服务
func NewSyncService(
	listingRepo repository.ListingRepository,
	productRepo repository.ProductRepository,
	auth *AuthService,
	client *meli.Client,
	pricing *PricingService,
	stock *StockService,
	accountID int64,
) *SyncService {
	return &SyncService{
		listingRepo: listingRepo,
		productRepo: productRepo,
		auth:        auth,
		client:      client,
		pricing:     pricing,
		stock:       stock,
		accountID:   accountID,
		now:         time.Now,
	}
}

// Sync 对账一条刊登，返回是否发生了 (或 dryRun 下将发生) 推送
// 无远端 id / 差分为空时不发任何网络请求；
// 推送失败不动缓存、返回 false，对批次不致命
func (s *SyncService) Sync(ctx context.Context, listing *model.Listing, opts SyncOptions) (bool, error) {
	if !listing.HasRemote() {
		return false, nil
	}

	product := listing.Product
	if product == nil {
		var err error
		product, err = s.productRepo.GetByID(ctx, listing.ProductID)
		if err != nil {
			return false, err
		}
	}

	payload := map[string]interface{}{}
	fields := map[string]interface{}{}

	if product.Price != nil {
		result := s.pricing.Calculate(*product.Price)
		if opts.Force || !result.FinalPrice.Equal(listing.FinalPrice) {
			payload["price"] = result.FinalPrice.InexactFloat64()
			fields["final_price"] = result.FinalPrice
			fields["net_price"] = result.NetPrice
			fields["profit"] = result.Profit
		}
	}

	quantity := 0
	if product.IsActive {
		quantity = s.stock.AvailableQuantity(product)
	}
	if opts.Force || quantity != listing.AvailableQuantity {
		payload["available_quantity"] = quantity
		fields["available_quantity"] = quantity
	}

	if len(payload) == 0 {
		return false, nil
	}
	if opts.DryRun {
		return true, nil
	}

	token, err := s.auth.GetValidToken(ctx, s.accountID)
	if err != nil {
		return false, err
	}

	if _, err := s.client.Put(ctx, token.AccessToken, "/items/"+listing.RemoteID, payload); err != nil {
		log.Printf("[Sync] 刊登 %d (item=%s) 推送失败: %v", listing.ID, listing.RemoteID, err)
		return false, nil
	}

	syncedAt := s.now()
	fields["last_synced_at"] = syncedAt
	if err := s.listingRepo.UpdateFields(ctx, listing.ID, fields); err != nil {
		return false, err
	}

	// 同步内存对象，调用方可能继续用它
	if product.Price != nil {
		result := s.pricing.Calculate(*product.Price)
		listing.FinalPrice = result.FinalPrice
		listing.NetPrice = result.NetPrice
		listing.Profit = result.Profit
	}
	listing.AvailableQuantity = quantity
	listing.LastSyncedAt = &syncedAt

	return true, nil
}
