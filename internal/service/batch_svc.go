package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/config"
)

// ==================== 结果结构 ====================

// PublishBatchResult 发布批次统计
type PublishBatchResult struct {
	Success      int      `json:"success"`
	Errors       int      `json:"errors"`
	Skipped      int      `json:"skipped"`
	PublishedIDs []string `json:"published_ids"`
}

// SyncBatchResult 同步批次统计
type SyncBatchResult struct {
	Updated  int `json:"updated"`
	NoChange int `json:"no_change"`
	Errors   int `json:"errors"`
}

// MaintenanceResult 暂停/关闭批次统计
type MaintenanceResult struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

// ==================== 编排器 ====================

// BatchService 批次编排
// 单批内严格顺序处理 (按 id 稳定排序)，单条失败只记账绝不中断整批；
// 凭证类错误例外：对整轮致命，立即终止并上抛
type BatchService struct {
	listingRepo repository.ListingRepository
	productRepo repository.ProductRepository
	eligibility *EligibilityService
	publish     *PublishService
	sync        *SyncService
	lifecycle   *LifecycleService

	limit      int
	delay      time.Duration // 条目间固定间隔，尊重市场侧限流
	closeAfter time.Duration

	now func() time.Time
}

// NewBatchService 创建批次编排器
func NewBatchService(
	listingRepo repository.ListingRepository,
	productRepo repository.ProductRepository,
	eligibility *EligibilityService,
	publish *PublishService,
	sync *SyncService,
	lifecycle *LifecycleService,
	cfg *config.BatchConfig,
) *BatchService {
	closeAfter := time.Duration(cfg.CloseAfterHours) * time.Hour
	if closeAfter <= 0 {
		closeAfter = 48 * time.Hour
	}
	return &BatchService{
		listingRepo: listingRepo,
		productRepo: productRepo,
		eligibility: eligibility,
		publish:     publish,
		sync:        sync,
		lifecycle:   lifecycle,
		limit:       cfg.Limit,
		delay:       time.Duration(cfg.DelayMs) * time.Millisecond,
		closeAfter:  closeAfter,
		now:         time.Now,
	}
}

func (s *BatchService) pause() {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}

func runID() string {
	return uuid.NewString()[:8]
}

// ==================== 发布批次 ====================

// RunPublishBatch 两段式发布批次：
// 第一段把合格商品对账进 PENDING 刊登 (惰性建档 + 刷新缓存价格/数量/类目)；
// 第二段取发布工作集 (PENDING/ERROR、无远端、有货) 逐条执行发布协议，
// 上一轮落 ERROR 的刊登在这里自动回到队伍
func (s *BatchService) RunPublishBatch(ctx context.Context, opts PublishOptions) (*PublishBatchResult, error) {
	id := runID()
	log.Printf("[Batch:%s] 发布批次开始 (dry_run=%v sandbox=%v)", id, opts.DryRun, opts.Sandbox)

	result := &PublishBatchResult{PublishedIDs: []string{}}
	now := s.now()

	// 1. 建档段
	products, err := s.productRepo.ListEligible(ctx, s.eligibility.Scope(now), s.limit)
	if err != nil {
		return nil, err
	}

	staged := make([]*model.Listing, 0, len(products))
	for i := range products {
		product := &products[i]

		listing, _, err := s.publish.Prepare(ctx, product, opts.DryRun)
		if err != nil {
			if IsFatalTokenError(err) {
				return result, err
			}
			result.Errors++
			log.Printf("[Batch:%s] 商品 %d 建档失败: %v", id, product.ID, err)
			continue
		}
		staged = append(staged, listing)
	}

	// 2. 发布段。dryRun 下建档没有落库，直接用内存对象演算；
	// 正常路径重查工作集，把历史 ERROR 行一并捞回
	var worklist []*model.Listing
	if opts.DryRun {
		worklist = staged
	} else {
		listings, err := s.listingRepo.ListPublishable(ctx, s.limit)
		if err != nil {
			return result, err
		}
		for i := range listings {
			worklist = append(worklist, &listings[i])
		}
	}

	for _, listing := range worklist {
		if listing.AvailableQuantity <= 0 || listing.HasRemote() {
			result.Skipped++
			continue
		}
		product := listing.Product
		if product == nil {
			product, err = s.productRepo.GetByID(ctx, listing.ProductID)
			if err != nil {
				result.Errors++
				log.Printf("[Batch:%s] 刊登 %d 商品加载失败: %v", id, listing.ID, err)
				continue
			}
		}

		res, err := s.publish.Publish(ctx, product, listing, opts)
		if err != nil {
			if IsFatalTokenError(err) {
				return result, err
			}
			result.Errors++
			log.Printf("[Batch:%s] 商品 %d 发布失败: %v", id, product.ID, err)
			s.pause()
			continue
		}

		result.Success++
		if res.RemoteID != "" {
			result.PublishedIDs = append(result.PublishedIDs, res.RemoteID)
		}
		s.pause()
	}

	log.Printf("[Batch:%s] 发布批次结束 success=%d errors=%d skipped=%d",
		id, result.Success, result.Errors, result.Skipped)
	return result, nil
}

// PublishListing 定向发布：按刊登 id
func (s *BatchService) PublishListing(ctx context.Context, listingID int64, opts PublishOptions) (*PublishResult, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	product := listing.Product
	if product == nil {
		product, err = s.productRepo.GetByID(ctx, listing.ProductID)
		if err != nil {
			return nil, err
		}
	}
	prepared, _, err := s.publish.Prepare(ctx, product, opts.DryRun)
	if err != nil {
		return nil, err
	}
	// Prepare 可能更新了缓存字段：dry-run 不落库，直接用演算后的对象；
	// 否则重读保证 payload 用的是落库后的最新缓存
	listing = prepared
	if !opts.DryRun {
		listing, err = s.listingRepo.GetByID(ctx, listingID)
		if err != nil {
			return nil, err
		}
	}
	return s.publish.Publish(ctx, product, listing, opts)
}

// PublishByCode 定向发布：按目录编码
func (s *BatchService) PublishByCode(ctx context.Context, code string, opts PublishOptions) (*PublishResult, error) {
	product, err := s.productRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	listing, _, err := s.publish.Prepare(ctx, product, opts.DryRun)
	if err != nil {
		return nil, err
	}
	return s.publish.Publish(ctx, product, listing, opts)
}

// ==================== 同步批次 ====================

// RunSyncBatch 对所有 ACTIVE 刊登做差分推送
func (s *BatchService) RunSyncBatch(ctx context.Context, opts SyncOptions) (*SyncBatchResult, error) {
	id := runID()
	log.Printf("[Batch:%s] 同步批次开始 (dry_run=%v force=%v)", id, opts.DryRun, opts.Force)

	result := &SyncBatchResult{}

	listings, err := s.listingRepo.ListActive(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	for i := range listings {
		listing := &listings[i]

		changed, err := s.sync.Sync(ctx, listing, opts)
		if err != nil {
			if IsFatalTokenError(err) {
				return result, err
			}
			result.Errors++
			log.Printf("[Batch:%s] 刊登 %d 同步失败: %v", id, listing.ID, err)
			continue
		}
		if changed {
			result.Updated++
			s.pause()
		} else {
			result.NoChange++
		}
	}

	log.Printf("[Batch:%s] 同步批次结束 updated=%d no_change=%d errors=%d",
		id, result.Updated, result.NoChange, result.Errors)
	return result, nil
}

// SyncListing 定向同步：按刊登 id
func (s *BatchService) SyncListing(ctx context.Context, listingID int64, opts SyncOptions) (bool, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return false, err
	}
	return s.sync.Sync(ctx, listing, opts)
}

// ==================== 暂停/关闭批次 ====================

// RunPauseBatch 暂停所有无货的 ACTIVE 刊登
func (s *BatchService) RunPauseBatch(ctx context.Context, dryRun bool) (*MaintenanceResult, error) {
	id := runID()
	result := &MaintenanceResult{}

	listings, err := s.listingRepo.ListActiveOutOfStock(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[Batch:%s] 暂停批次开始，候选 %d 条 (dry_run=%v)", id, len(listings), dryRun)

	for i := range listings {
		listing := &listings[i]
		if err := s.lifecycle.Pause(ctx, listing, dryRun); err != nil {
			if IsFatalTokenError(err) {
				return result, err
			}
			result.Errors++
			log.Printf("[Batch:%s] 刊登 %d 暂停失败: %v", id, listing.ID, err)
			continue
		}
		result.Success++
		if !dryRun {
			s.pause()
		}
	}

	log.Printf("[Batch:%s] 暂停批次结束 success=%d errors=%d", id, result.Success, result.Errors)
	return result, nil
}

// RunCloseBatch 关闭所有暂停超过阈值的刊登 (hours<=0 用配置默认值)
func (s *BatchService) RunCloseBatch(ctx context.Context, hours int, dryRun bool) (*MaintenanceResult, error) {
	id := runID()
	result := &MaintenanceResult{}

	threshold := s.closeAfter
	if hours > 0 {
		threshold = time.Duration(hours) * time.Hour
	}
	cutoff := s.now().Add(-threshold)

	listings, err := s.listingRepo.ListPausedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	log.Printf("[Batch:%s] 关闭批次开始，候选 %d 条 (cutoff=%s dry_run=%v)",
		id, len(listings), cutoff.Format(time.RFC3339), dryRun)

	for i := range listings {
		listing := &listings[i]
		if err := s.lifecycle.Close(ctx, listing, dryRun); err != nil {
			if IsFatalTokenError(err) {
				return result, err
			}
			result.Errors++
			log.Printf("[Batch:%s] 刊登 %d 关闭失败: %v", id, listing.ID, err)
			continue
		}
		result.Success++
		if !dryRun {
			s.pause()
		}
	}

	log.Printf("[Batch:%s] 关闭批次结束 success=%d errors=%d", id, result.Success, result.Errors)
	return result, nil
}

// ==================== 辅助 ====================

// PauseListing 定向暂停
func (s *BatchService) PauseListing(ctx context.Context, listingID int64, dryRun bool) error {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	return s.lifecycle.Pause(ctx, listing, dryRun)
}

// CloseListing 定向关闭
func (s *BatchService) CloseListing(ctx context.Context, listingID int64, dryRun bool) error {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	return s.lifecycle.Close(ctx, listing, dryRun)
}

// IsEligibleNow 单对象资格判定的便捷入口 (行级与批量形态共享同一谓词)
func (s *BatchService) IsEligibleNow(product *model.Product) bool {
	return s.eligibility.IsEligible(product, s.now())
}
