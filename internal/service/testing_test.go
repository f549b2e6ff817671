package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/pkg/config"
	"meli_sync_v1_202601/pkg/meli"
)

// ==================== 测试辅助 ====================

func setupSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.MeliToken{}, &model.Product{}, &model.Listing{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func newMeliTestClient(baseURL string) *meli.Client {
	return meli.NewClient(&meli.ClientConfig{
		BaseURL:      baseURL,
		ClientID:     "test-app",
		ClientSecret: "test-secret",
		RetryCount:   1,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
}

// seedToken 落一条未过期的凭证
func seedToken(t *testing.T, db *gorm.DB, accountID int64) *model.MeliToken {
	t.Helper()
	token := &model.MeliToken{
		AccountID:    accountID,
		Environment:  model.EnvProduction,
		AccessToken:  "AT-valid",
		RefreshToken: "RT-valid",
		ExpiresAt:    time.Now().Add(6 * time.Hour),
	}
	if err := db.Create(token).Error; err != nil {
		t.Fatalf("凭证落库失败: %v", err)
	}
	return token
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("非法测试小数 %q: %v", s, err)
	}
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	d := dec(t, s)
	return &d
}

func strPtr(s string) *string {
	return &s
}

// testPricingConfig 与默认配置同形的定价参数
func testPricingConfig(t *testing.T) *config.PricingConfig {
	t.Helper()
	maxLow := dec(t, "100")
	maxMid := dec(t, "500")
	return &config.PricingConfig{
		OperationalCost: dec(t, "10"),
		TargetMargin:    dec(t, "0.20"),
		ShippingFee:     dec(t, "5"),
		IvaRate:         dec(t, "0.12"),
		CommissionRate:  dec(t, "0.15"),
		Tiers: []config.CommissionTier{
			{Max: &maxLow, Rate: dec(t, "0.18")},
			{Max: &maxMid, Rate: dec(t, "0.15")},
			{Max: nil, Rate: dec(t, "0.10")},
		},
	}
}
