package service

import (
	"context"
	"testing"
	"time"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/config"
)

func testPublicationConfig(t *testing.T) *config.PublicationConfig {
	t.Helper()
	return &config.PublicationConfig{
		FreshnessHours: 72,
		Rules: []config.PublicationRule{
			{Category: "car", MinPrice: dec(t, "100")},
			{Category: "toys", MinPrice: dec(t, "50")},
		},
	}
}

func freshProduct(t *testing.T, now time.Time) *model.Product {
	t.Helper()
	return &model.Product{
		BaseModel:   model.BaseModel{UpdatedAt: now.Add(-time.Hour)},
		Title:       "Auto a escala",
		Price:       decPtr(t, "150"),
		Category:    strPtr("Car"),
		IsActive:    true,
		MeliEnabled: true,
	}
}

func TestIsEligible(t *testing.T) {
	svc := NewEligibilityService(testPublicationConfig(t))
	now := time.Now()

	t.Run("合格商品", func(t *testing.T) {
		if !svc.IsEligible(freshProduct(t, now), now) {
			t.Error("齐全且命中规则的商品应合格")
		}
	})

	t.Run("类目精确匹配不做子串", func(t *testing.T) {
		p := freshProduct(t, now)
		p.Category = strPtr("Cartoons")
		if svc.IsEligible(p, now) {
			t.Error("Cartoons 不应命中 car 规则")
		}
	})

	t.Run("类目归一化 trim+小写", func(t *testing.T) {
		p := freshProduct(t, now)
		p.Category = strPtr("  CAR  ")
		if !svc.IsEligible(p, now) {
			t.Error("大小写与空白不应影响类目命中")
		}
	})

	t.Run("阈值含等于", func(t *testing.T) {
		p := freshProduct(t, now)
		p.Price = decPtr(t, "100")
		if !svc.IsEligible(p, now) {
			t.Error("价格等于阈值应合格")
		}
		p.Price = decPtr(t, "99.99")
		if svc.IsEligible(p, now) {
			t.Error("价格低于阈值不应合格")
		}
	})

	t.Run("缺价格或类目", func(t *testing.T) {
		p := freshProduct(t, now)
		p.Price = nil
		if svc.IsEligible(p, now) {
			t.Error("缺价格不应合格")
		}
		p = freshProduct(t, now)
		p.Category = nil
		if svc.IsEligible(p, now) {
			t.Error("缺类目不应合格")
		}
	})

	t.Run("开关关闭", func(t *testing.T) {
		p := freshProduct(t, now)
		p.IsActive = false
		if svc.IsEligible(p, now) {
			t.Error("停用商品不应合格")
		}
		p = freshProduct(t, now)
		p.MeliEnabled = false
		if svc.IsEligible(p, now) {
			t.Error("未开上架开关不应合格")
		}
	})

	t.Run("新鲜窗口", func(t *testing.T) {
		p := freshProduct(t, now)
		p.UpdatedAt = now.Add(-73 * time.Hour)
		if svc.IsEligible(p, now) {
			t.Error("超过新鲜窗口不应合格")
		}
	})

	t.Run("无规则即无候选", func(t *testing.T) {
		empty := NewEligibilityService(&config.PublicationConfig{FreshnessHours: 72})
		if empty.IsEligible(freshProduct(t, now), now) {
			t.Error("无规则时任何商品都不应合格")
		}
	})
}

// 批量下推形态与单对象形态必须对同一批商品选出同一集合
func TestScope_AgreesWithIsEligible(t *testing.T) {
	db := setupSvcDB(t)
	repo := repository.NewProductRepository(db)
	svc := NewEligibilityService(testPublicationConfig(t))
	ctx := context.Background()
	now := time.Now()

	seed := []*model.Product{
		{Code: "ok-car", Price: decPtr(t, "150"), Category: strPtr("Car"), IsActive: true, MeliEnabled: true},
		{Code: "ok-boundary", Price: decPtr(t, "100"), Category: strPtr("car"), IsActive: true, MeliEnabled: true},
		{Code: "ok-spaced", Price: decPtr(t, "60"), Category: strPtr("  Toys "), IsActive: true, MeliEnabled: true},
		{Code: "no-substring", Price: decPtr(t, "500"), Category: strPtr("Cartoons"), IsActive: true, MeliEnabled: true},
		{Code: "no-cheap", Price: decPtr(t, "99.99"), Category: strPtr("car"), IsActive: true, MeliEnabled: true},
		{Code: "no-price", Price: nil, Category: strPtr("car"), IsActive: true, MeliEnabled: true},
		{Code: "no-category", Price: decPtr(t, "150"), Category: nil, IsActive: true, MeliEnabled: true},
		{Code: "no-inactive", Price: decPtr(t, "150"), Category: strPtr("car"), IsActive: false, MeliEnabled: true},
		{Code: "no-disabled", Price: decPtr(t, "150"), Category: strPtr("car"), IsActive: true, MeliEnabled: false},
		{Code: "no-stale", Price: decPtr(t, "150"), Category: strPtr("car"), IsActive: true, MeliEnabled: true},
	}
	for _, p := range seed {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("商品落库失败: %v", err)
		}
	}
	// 过期数据单独回拨
	if err := db.Model(&model.Product{}).Where("code = ?", "no-stale").
		Update("updated_at", now.Add(-80*time.Hour)).Error; err != nil {
		t.Fatalf("回拨更新时间失败: %v", err)
	}

	got, err := repo.ListEligible(ctx, svc.Scope(now), 0)
	if err != nil {
		t.Fatalf("批量候选查询失败: %v", err)
	}

	gotCodes := map[string]bool{}
	for _, p := range got {
		gotCodes[p.Code] = true
	}

	var all []model.Product
	if err := db.Find(&all).Error; err != nil {
		t.Fatalf("全量查询失败: %v", err)
	}
	for i := range all {
		p := &all[i]
		want := svc.IsEligible(p, now)
		if gotCodes[p.Code] != want {
			t.Errorf("商品 %s 两种形态不一致: 内存=%v 下推=%v", p.Code, want, gotCodes[p.Code])
		}
	}

	// 顺带确认关键用例的方向
	for _, code := range []string{"ok-car", "ok-boundary", "ok-spaced"} {
		if !gotCodes[code] {
			t.Errorf("%s 应入选", code)
		}
	}
	for _, code := range []string{"no-substring", "no-cheap", "no-stale"} {
		if gotCodes[code] {
			t.Errorf("%s 不应入选", code)
		}
	}
}

func TestScope_NoRulesSelectsNothing(t *testing.T) {
	db := setupSvcDB(t)
	repo := repository.NewProductRepository(db)
	svc := NewEligibilityService(&config.PublicationConfig{FreshnessHours: 72})
	ctx := context.Background()

	p := &model.Product{Code: "any", Price: decPtr(t, "150"), Category: strPtr("car"), IsActive: true, MeliEnabled: true}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("商品落库失败: %v", err)
	}

	got, err := repo.ListEligible(ctx, svc.Scope(time.Now()), 0)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("无规则时应零候选，实际 %d", len(got))
	}
}
