package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/meli"
)

// 沙箱账号的标题哨兵：测试环境绝不允许真实标题流出
const sandboxTitleSentinel = "Item de Test - Por favor no ofertar"

// 固定质保条款
const defaultWarranty = "Garantía del vendedor: 30 días"

// PublishOptions 单次发布选项
type PublishOptions struct {
	DryRun  bool
	Sandbox bool
}

// PublishResult 发布结果
type PublishResult struct {
	RemoteID string
	Payload  map[string]interface{}
	Repaired bool // 是否走过属性修复重试
}

// PublishService 刊登发布
// 协议：创建 → 写描述 → 置 ACTIVE；创建遇 400 校验错误且配置了属性修复器时，
// 修复后整体重试一次，结构上保证至多一次修复，绝不循环
type PublishService struct {
	listingRepo repository.ListingRepository
	auth        *AuthService
	client      *meli.Client
	pricing     *PricingService
	stock       *StockService
	predictor   CategoryPredictor // 可为空：类目缺失时跳过预测
	fixer       AttributeFixer    // 可为空：不做自愈重试
	accountID   int64
	currencyID  string

	now func() time.Time
}

// NewPublishService 创建发布服务
func NewPublishService(
	listingRepo repository.ListingRepository,
	auth *AuthService,
	client *meli.Client,
	pricing *PricingService,
	stock *StockService,
	predictor CategoryPredictor,
	fixer AttributeFixer,
	accountID int64,
	currencyID string,
) *PublishService {
	return &PublishService{
		listingRepo: listingRepo,
		auth:        auth,
		client:      client,
		pricing:     pricing,
		stock:       stock,
		predictor:   predictor,
		fixer:       fixer,
		accountID:   accountID,
		currencyID:  currencyID,
		now:         time.Now,
	}
}

// ==================== 建档与缓存刷新 ====================

// Prepare 惰性建档 + 刷新缓存字段 (价格三元组 / 可售数量 / 类目)
// dryRun 下不产生任何落库：不存在的刊登以临时对象参与演算
func (s *PublishService) Prepare(ctx context.Context, product *model.Product, dryRun bool) (*model.Listing, bool, error) {
	var (
		listing *model.Listing
		created bool
		err     error
	)
	if dryRun {
		listing, err = s.listingRepo.GetByProduct(ctx, product.ID)
		if err != nil {
			return nil, false, err
		}
		if listing == nil {
			listing = &model.Listing{ProductID: product.ID, Status: model.ListingStatusPending}
			created = true
		}
	} else {
		listing, created, err = s.listingRepo.LoadOrInit(ctx, product.ID)
		if err != nil {
			return nil, false, err
		}
	}
	listing.Product = product

	fields := map[string]interface{}{}

	if product.Price != nil {
		result := s.pricing.Calculate(*product.Price)
		listing.FinalPrice = result.FinalPrice
		listing.NetPrice = result.NetPrice
		listing.Profit = result.Profit
		fields["final_price"] = result.FinalPrice
		fields["net_price"] = result.NetPrice
		fields["profit"] = result.Profit
	}

	quantity := 0
	if product.IsActive {
		quantity = s.stock.AvailableQuantity(product)
	}
	listing.AvailableQuantity = quantity
	fields["available_quantity"] = quantity

	if listing.CategoryID == "" && s.predictor != nil {
		category, perr := s.predictor.PredictCategory(ctx, product.Title)
		if perr != nil {
			if IsFatalTokenError(perr) {
				return nil, false, perr
			}
			log.Printf("[Publish] 商品 %d 类目预测失败: %v", product.ID, perr)
		} else {
			listing.CategoryID = category
			fields["category_id"] = category
		}
	}

	if !dryRun {
		if err := s.listingRepo.UpdateFields(ctx, listing.ID, fields); err != nil {
			return nil, false, err
		}
	}
	return listing, created, nil
}

// ==================== 发布协议 ====================

// Publish 执行发布协议
// dryRun 只返回即将提交的 payload，不发网络请求、不动任何状态
func (s *PublishService) Publish(ctx context.Context, product *model.Product, listing *model.Listing, opts PublishOptions) (*PublishResult, error) {
	payload := s.buildItemPayload(product, listing, opts.Sandbox)
	if opts.DryRun {
		return &PublishResult{Payload: payload}, nil
	}

	// 凭证类错误不落刊登档：这是整轮批次的致命错误，由批次层裁决
	token, err := s.auth.GetValidToken(ctx, s.accountID)
	if err != nil {
		return nil, err
	}

	// 第一次尝试
	remoteID, err := s.createRemote(ctx, token.AccessToken, payload, product)
	repaired := false

	// 自愈分支：仅限创建请求本身被 400 拒绝 (remoteID 为空) 且配置了修复器，
	// 修复属性后做第二次也是最后一次尝试。描述写入失败时远端条目已存在，
	// 重走协议会产生重复刊登，一律按普通失败落终态
	if err != nil && remoteID == "" {
		if apiErr, ok := meli.AsValidationError(err); ok && s.fixer != nil {
			fixed, fixErr := s.fixer.FixAttributes(ctx, product, listing.AttributeList(), apiErr)
			if fixErr != nil {
				log.Printf("[Publish] 刊登 %d 属性修复失败: %v", listing.ID, fixErr)
			} else if setErr := listing.SetAttributeList(fixed); setErr != nil {
				log.Printf("[Publish] 刊登 %d 属性序列化失败: %v", listing.ID, setErr)
			} else {
				// 修正后的属性先落库，再带新属性重试
				if uerr := s.listingRepo.UpdateFields(ctx, listing.ID, map[string]interface{}{
					"attributes": listing.Attributes,
				}); uerr != nil {
					log.Printf("[Publish] 刊登 %d 修复属性落库失败: %v", listing.ID, uerr)
				}
				payload["attributes"] = attributePayload(fixed)
				repaired = true
				remoteID, err = s.createRemote(ctx, token.AccessToken, payload, product)
			}
		}
	}

	// 终态：第二次失败或不可修复的失败都落 ERROR 并上抛。
	// 远端已创建的条目要一并记下 item id，把该行挡在发布工作集之外，防止重复创建
	if err != nil {
		var markErr error
		if remoteID == "" {
			markErr = s.listingRepo.MarkError(ctx, listing.ID, err.Error())
		} else {
			markErr = s.listingRepo.UpdateFields(ctx, listing.ID, map[string]interface{}{
				"status":     model.ListingStatusError,
				"last_error": err.Error(),
				"remote_id":  remoteID,
			})
			listing.RemoteID = remoteID
		}
		if markErr != nil {
			log.Printf("[Publish] 刊登 %d 错误状态落库失败: %v", listing.ID, markErr)
		}
		listing.Status = model.ListingStatusError
		listing.LastError = err.Error()
		return nil, err
	}

	syncedAt := s.now()
	if err := s.listingRepo.MarkActive(ctx, listing.ID, remoteID, syncedAt); err != nil {
		return nil, err
	}
	listing.RemoteID = remoteID
	listing.Status = model.ListingStatusActive
	listing.LastSyncedAt = &syncedAt
	listing.LastError = ""

	log.Printf("[Publish] 商品 %d 发布成功 item=%s (repaired=%v)", product.ID, remoteID, repaired)
	return &PublishResult{RemoteID: remoteID, Payload: payload, Repaired: repaired}, nil
}

// createRemote 创建 + 写描述，两步都成功才算创建完成。
// 描述写入失败时一并返回已创建的 remoteID，调用方据此区分失败发生在哪一步
func (s *PublishService) createRemote(ctx context.Context, token string, payload map[string]interface{}, product *model.Product) (string, error) {
	resp, err := s.client.Post(ctx, token, "/items", payload)
	if err != nil {
		return "", err
	}
	remoteID, _ := resp["id"].(string)
	if remoteID == "" {
		return "", fmt.Errorf("publish: 创建响应缺少 item id")
	}

	description := map[string]interface{}{"plain_text": s.descriptionText(product)}
	if _, err := s.client.Post(ctx, token, "/items/"+remoteID+"/description", description); err != nil {
		return remoteID, fmt.Errorf("publish: 描述写入失败 (item=%s): %w", remoteID, err)
	}
	return remoteID, nil
}

// ==================== payload 组装 ====================

func (s *PublishService) buildItemPayload(product *model.Product, listing *model.Listing, sandbox bool) map[string]interface{} {
	title := product.SeoTitle
	if title == "" {
		title = product.Title
	}
	if sandbox {
		title = sandboxTitleSentinel
	}

	payload := map[string]interface{}{
		"title":              title,
		"category_id":        listing.CategoryID,
		"price":              listing.FinalPrice.InexactFloat64(),
		"currency_id":        s.currencyID,
		"available_quantity": listing.AvailableQuantity,
		"buying_mode":        "buy_it_now",
		"listing_type_id":    "gold_special",
		"condition":          "new",
		"warranty":           defaultWarranty,
	}

	if len(product.ImageURLs) > 0 {
		pictures := make([]map[string]string, 0, len(product.ImageURLs))
		for _, u := range product.ImageURLs {
			pictures = append(pictures, map[string]string{"source": u})
		}
		payload["pictures"] = pictures
	}

	if attrs := listing.AttributeList(); len(attrs) > 0 {
		payload["attributes"] = attributePayload(attrs)
	}

	return payload
}

func attributePayload(attrs []model.ListingAttribute) []map[string]string {
	out := make([]map[string]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, map[string]string{"id": a.ID, "value_name": a.ValueName})
	}
	return out
}

func (s *PublishService) descriptionText(product *model.Product) string {
	if product.SeoDescription != "" {
		return product.SeoDescription
	}
	return product.Title
}
