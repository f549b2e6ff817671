package service

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/pkg/config"
)

// EligibilityService 上架资格判定
// 同一个谓词提供两种形态：单对象内存判定 IsEligible，与批量下推 Scope。
// 两种形态必须在所有边界情况上一致 (阈值含等于、类目精确匹配不做子串)
type EligibilityService struct {
	rules     []config.PublicationRule
	freshness time.Duration
}

// NewEligibilityService 创建资格判定服务
func NewEligibilityService(cfg *config.PublicationConfig) *EligibilityService {
	return &EligibilityService{
		rules:     cfg.Rules,
		freshness: time.Duration(cfg.FreshnessHours) * time.Hour,
	}
}

// normalizeCategory 类目归一化：trim + 小写，两种形态统一用这一条规则
func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// IsEligible 商品是否可上架：
// 启用中、开了目录级上架开关、价格与类目齐全、数据在新鲜窗口内，
// 且类目精确命中某条规则并达到其价格阈值 (含等于)
func (s *EligibilityService) IsEligible(p *model.Product, now time.Time) bool {
	if !p.IsActive || !p.MeliEnabled {
		return false
	}
	if p.Price == nil || p.Category == nil {
		return false
	}
	if p.UpdatedAt.Before(now.Add(-s.freshness)) {
		return false
	}

	category := normalizeCategory(*p.Category)
	for _, rule := range s.rules {
		// 精确相等，绝不允许 "car" 命中 "cartoons" 这类子串
		if rule.Category == category && p.Price.GreaterThanOrEqual(rule.MinPrice) {
			return true
		}
	}
	return false
}

// Scope 同一谓词的查询形态，供批量候选选取下推到数据库
func (s *EligibilityService) Scope(now time.Time) func(*gorm.DB) *gorm.DB {
	cutoff := now.Add(-s.freshness)
	rules := s.rules

	return func(db *gorm.DB) *gorm.DB {
		db = db.
			Where("is_active = ?", true).
			Where("meli_enabled = ?", true).
			Where("price IS NOT NULL").
			Where("category IS NOT NULL").
			Where("updated_at >= ?", cutoff)

		if len(rules) == 0 {
			// 无规则即无候选，与内存形态保持一致
			return db.Where("1 = 0")
		}

		group := db.Session(&gorm.Session{NewDB: true}).
			Where("LOWER(TRIM(category)) = ? AND price >= ?", rules[0].Category, rules[0].MinPrice)
		for _, rule := range rules[1:] {
			group = group.Or("LOWER(TRIM(category)) = ? AND price >= ?", rule.Category, rule.MinPrice)
		}
		return db.Where(group)
	}
}
