package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/meli"
)

// ==================== 测试替身 ====================

type fakePredictor struct {
	category string
	calls    int32
}

func (f *fakePredictor) PredictCategory(ctx context.Context, title string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.category, nil
}

type fakeFixer struct {
	fixed []model.ListingAttribute
	calls int32
}

func (f *fakeFixer) FixAttributes(ctx context.Context, product *model.Product,
	current []model.ListingAttribute, apiErr *meli.ApiError) ([]model.ListingAttribute, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fixed, nil
}

// ==================== 测试夹具 ====================

type publishFixture struct {
	db          *gorm.DB
	listingRepo repository.ListingRepository
	svc         *PublishService
	itemCalls   *int32
	descCalls   *int32
}

// newPublishFixture 起一个脚本化的市场假服务：
// itemResponses 按调用次序给 POST /items 的 (状态码, 响应体)，描述接口固定返回 200
func newPublishFixture(t *testing.T, fixer AttributeFixer, itemResponses []struct {
	status int
	body   string
}) *publishFixture {
	t.Helper()
	return newPublishFixtureWithDesc(t, fixer, itemResponses, nil)
}

// newPublishFixtureWithDesc 额外脚本化 POST /items/{id}/description 的应答，
// 超出脚本部分回落到 200
func newPublishFixtureWithDesc(t *testing.T, fixer AttributeFixer, itemResponses, descResponses []struct {
	status int
	body   string
}) *publishFixture {
	t.Helper()
	db := setupSvcDB(t)
	seedToken(t, db, 777)

	var itemCalls, descCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&itemCalls, 1)) - 1
		if n >= len(itemResponses) {
			t.Errorf("POST /items 第 %d 次调用超出脚本", n+1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(itemResponses[n].status)
		w.Write([]byte(itemResponses[n].body))
	})
	mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&descCalls, 1)) - 1
		if n < len(descResponses) {
			w.WriteHeader(descResponses[n].status)
			w.Write([]byte(descResponses[n].body))
			return
		}
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	listingRepo := repository.NewListingRepository(db)
	client := newMeliTestClient(srv.URL)
	auth := NewAuthService(repository.NewTokenRepository(db), client, "")

	svc := NewPublishService(
		listingRepo, auth, client,
		NewPricingService(testPricingConfig(t)), NewStockService(),
		&fakePredictor{category: "MEC1055"}, fixer,
		777, "USD",
	)
	return &publishFixture{
		db:          db,
		listingRepo: listingRepo,
		svc:         svc,
		itemCalls:   &itemCalls,
		descCalls:   &descCalls,
	}
}

func seedPublishProduct(t *testing.T, db *gorm.DB) *model.Product {
	t.Helper()
	p := &model.Product{
		Code:           "SKU-1",
		Title:          "Telefono X100",
		SeoTitle:       "Telefono X100 128GB Liberado",
		SeoDescription: "Pantalla AMOLED, 128GB.",
		Price:          decPtr(t, "100"),
		Category:       strPtr("car"),
		IsActive:       true,
		MeliEnabled:    true,
		StockPrincipal: "SI",
		StockNorte:     "SI",
		StockSur:       "SI",
		StockCentro:    "NO",
		StockValle:     "SI",
		ImageURLs:      pq.StringArray{"https://img/1.jpg", "https://img/2.jpg"},
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("商品落库失败: %v", err)
	}
	return p
}

// ==================== 建档 ====================

func TestPrepare_CreatesPendingWithCaches(t *testing.T) {
	fx := newPublishFixture(t, nil, nil)
	p := seedPublishProduct(t, fx.db)

	listing, created, err := fx.svc.Prepare(context.Background(), p, false)
	if err != nil {
		t.Fatalf("建档失败: %v", err)
	}
	if !created {
		t.Error("首次建档应标记新建")
	}
	if listing.Status != model.ListingStatusPending {
		t.Errorf("新刊登应为 PENDING，实际 %s", listing.Status)
	}
	if listing.AvailableQuantity != 3 {
		t.Errorf("可售数量期望 3，实际 %d", listing.AvailableQuantity)
	}
	if listing.CategoryID != "MEC1055" {
		t.Errorf("类目应来自预测器，实际 %q", listing.CategoryID)
	}

	// 缓存字段已落库
	stored, err := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if err != nil || stored == nil {
		t.Fatalf("重查刊登失败: %v", err)
	}
	if stored.FinalPrice.StringFixed(2) != listing.FinalPrice.StringFixed(2) {
		t.Error("价格缓存未落库")
	}

	// 二次建档幂等
	again, created, err := fx.svc.Prepare(context.Background(), p, false)
	if err != nil {
		t.Fatalf("二次建档失败: %v", err)
	}
	if created || again.ID != listing.ID {
		t.Error("二次建档应复用已有刊登")
	}
}

func TestPrepare_DryRunNoPersist(t *testing.T) {
	fx := newPublishFixture(t, nil, nil)
	p := seedPublishProduct(t, fx.db)

	listing, _, err := fx.svc.Prepare(context.Background(), p, true)
	if err != nil {
		t.Fatalf("dry-run 建档失败: %v", err)
	}
	if listing.AvailableQuantity != 3 {
		t.Errorf("dry-run 仍应完成演算，数量期望 3 实际 %d", listing.AvailableQuantity)
	}

	var count int64
	fx.db.Model(&model.Listing{}).Count(&count)
	if count != 0 {
		t.Errorf("dry-run 不应产生任何落库，实际 %d 行", count)
	}
}

// ==================== 发布协议 ====================

func TestPublish_Success(t *testing.T) {
	fx := newPublishFixture(t, nil, []struct {
		status int
		body   string
	}{
		{200, `{"id":"MEC111"}`},
	})
	p := seedPublishProduct(t, fx.db)
	listing, _, err := fx.svc.Prepare(context.Background(), p, false)
	if err != nil {
		t.Fatalf("建档失败: %v", err)
	}

	result, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if result.RemoteID != "MEC111" {
		t.Errorf("远端 id 期望 MEC111，实际 %q", result.RemoteID)
	}
	if result.Repaired {
		t.Error("一次成功不应标记修复")
	}
	if atomic.LoadInt32(fx.descCalls) != 1 {
		t.Error("创建成功后应写一次描述")
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if stored.Status != model.ListingStatusActive {
		t.Errorf("发布成功应置 ACTIVE，实际 %s", stored.Status)
	}
	if stored.RemoteID != "MEC111" || stored.LastSyncedAt == nil || stored.LastError != "" {
		t.Error("终态写入应包含 remote_id、同步时间并清空错误")
	}

	// payload 形状
	if result.Payload["currency_id"] != "USD" {
		t.Error("payload 缺 currency_id")
	}
	if result.Payload["title"] != p.SeoTitle {
		t.Error("标题应优先用 SEO 标题")
	}
	if _, ok := result.Payload["price"].(float64); !ok {
		t.Error("price 应为数字而非带引号的 decimal")
	}
}

func TestPublish_SelfHealExactlyOnce(t *testing.T) {
	fixer := &fakeFixer{fixed: []model.ListingAttribute{{ID: "BRAND", ValueName: "Genérica"}}}
	fx := newPublishFixture(t, fixer, []struct {
		status int
		body   string
	}{
		{400, `{"cause":[{"code":"item.attributes.missing_required"}]}`},
		{200, `{"id":"MEC222"}`},
	})
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	result, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err != nil {
		t.Fatalf("自愈发布失败: %v", err)
	}
	if !result.Repaired {
		t.Error("应标记走过修复重试")
	}
	if atomic.LoadInt32(&fixer.calls) != 1 {
		t.Errorf("修复器应恰好调用一次，实际 %d", fixer.calls)
	}
	if atomic.LoadInt32(fx.itemCalls) != 2 {
		t.Errorf("创建应恰好尝试两次，实际 %d", *fx.itemCalls)
	}

	// 修复后的属性持久化，且进入重试 payload
	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	attrs := stored.AttributeList()
	if len(attrs) != 1 || attrs[0].ID != "BRAND" {
		t.Errorf("修复属性应落库，实际 %+v", attrs)
	}
	raw, _ := json.Marshal(result.Payload["attributes"])
	if string(raw) == "null" {
		t.Error("重试 payload 应带修复后的属性")
	}
}

func TestPublish_SecondValidationIsTerminal(t *testing.T) {
	fixer := &fakeFixer{fixed: []model.ListingAttribute{{ID: "BRAND", ValueName: "X"}}}
	fx := newPublishFixture(t, fixer, []struct {
		status int
		body   string
	}{
		{400, `{"message":"primer rechazo"}`},
		{400, `{"message":"segundo rechazo"}`},
	})
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	_, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err == nil {
		t.Fatal("二次校验失败应上抛")
	}
	if atomic.LoadInt32(fx.itemCalls) != 2 {
		t.Errorf("结构上最多两次尝试，实际 %d", *fx.itemCalls)
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if stored.Status != model.ListingStatusError {
		t.Errorf("终态应为 ERROR，实际 %s", stored.Status)
	}
	if stored.LastError == "" || !strings.Contains(stored.LastError, "segundo rechazo") {
		t.Errorf("last_error 应记录第二次失败信息，实际 %q", stored.LastError)
	}
}

func TestPublish_DescriptionRejectionNeverRetriesCreate(t *testing.T) {
	// 创建成功后描述被 400 拒绝：远端条目已存在，绝不能重走创建，
	// 修复器即使配置了也不介入
	fixer := &fakeFixer{fixed: []model.ListingAttribute{{ID: "BRAND", ValueName: "X"}}}
	fx := newPublishFixtureWithDesc(t, fixer,
		[]struct {
			status int
			body   string
		}{
			{200, `{"id":"MEC-FIRST"}`},
		},
		[]struct {
			status int
			body   string
		}{
			{400, `{"message":"descripcion invalida"}`},
		},
	)
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	_, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err == nil {
		t.Fatal("描述失败应上抛")
	}
	if atomic.LoadInt32(fx.itemCalls) != 1 {
		t.Errorf("描述失败不应再次 POST /items，实际 %d 次", *fx.itemCalls)
	}
	if atomic.LoadInt32(&fixer.calls) != 0 {
		t.Errorf("描述失败不应触发属性修复，实际 %d 次", fixer.calls)
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if stored.Status != model.ListingStatusError {
		t.Errorf("终态应为 ERROR，实际 %s", stored.Status)
	}
	// 已创建的远端 id 必须落档，否则下一轮会重复创建
	if stored.RemoteID != "MEC-FIRST" {
		t.Errorf("已创建的远端 id 应落档，实际 %q", stored.RemoteID)
	}
	publishable, _ := fx.listingRepo.ListPublishable(context.Background(), 0)
	for _, l := range publishable {
		if l.ID == listing.ID {
			t.Error("带远端 id 的 ERROR 行不得回到发布工作集")
		}
	}
}

func TestPublish_DescriptionServerErrorIsTerminal(t *testing.T) {
	// 描述接口 5xx：客户端重试预算耗尽后按普通失败落终态
	fx := newPublishFixtureWithDesc(t, nil,
		[]struct {
			status int
			body   string
		}{
			{200, `{"id":"MEC-FIRST"}`},
		},
		[]struct {
			status int
			body   string
		}{
			{500, `{"message":"interno"}`},
			{500, `{"message":"interno"}`},
		},
	)
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	_, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err == nil {
		t.Fatal("描述失败应上抛")
	}
	if atomic.LoadInt32(fx.itemCalls) != 1 {
		t.Errorf("描述失败不应再次 POST /items，实际 %d 次", *fx.itemCalls)
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if stored.Status != model.ListingStatusError {
		t.Errorf("终态应为 ERROR，实际 %s", stored.Status)
	}
	if !strings.Contains(stored.LastError, "MEC-FIRST") {
		t.Errorf("last_error 应带上已创建的 item id，实际 %q", stored.LastError)
	}
}

func TestPublish_NoFixerSingleAttempt(t *testing.T) {
	fx := newPublishFixture(t, nil, []struct {
		status int
		body   string
	}{
		{400, `{"message":"rechazo"}`},
	})
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	_, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if err == nil {
		t.Fatal("校验失败应上抛")
	}
	if atomic.LoadInt32(fx.itemCalls) != 1 {
		t.Errorf("未配置修复器时只应尝试一次，实际 %d", *fx.itemCalls)
	}
}

func TestPublish_DryRunZeroSideEffects(t *testing.T) {
	fx := newPublishFixture(t, nil, nil)
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, true)

	result, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run 发布失败: %v", err)
	}
	if result.Payload == nil {
		t.Error("dry-run 应返回演算 payload")
	}
	if result.RemoteID != "" {
		t.Error("dry-run 不应有远端 id")
	}
	if atomic.LoadInt32(fx.itemCalls) != 0 || atomic.LoadInt32(fx.descCalls) != 0 {
		t.Error("dry-run 不应发出任何网络请求")
	}

	var count int64
	fx.db.Model(&model.Listing{}).Count(&count)
	if count != 0 {
		t.Error("dry-run 不应产生落库")
	}
}

func TestPublish_SandboxTitleSentinel(t *testing.T) {
	fx := newPublishFixture(t, nil, nil)
	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, true)

	result, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{DryRun: true, Sandbox: true})
	if err != nil {
		t.Fatalf("沙箱 dry-run 失败: %v", err)
	}
	if result.Payload["title"] != sandboxTitleSentinel {
		t.Errorf("沙箱标题应为哨兵，实际 %q", result.Payload["title"])
	}
}

func TestPublish_TokenErrorNotRecordedOnListing(t *testing.T) {
	fx := newPublishFixture(t, nil, nil)
	// 清掉凭证，制造致命凭证错误
	fx.db.Unscoped().Where("1 = 1").Delete(&model.MeliToken{})

	p := seedPublishProduct(t, fx.db)
	listing, _, _ := fx.svc.Prepare(context.Background(), p, false)

	_, err := fx.svc.Publish(context.Background(), p, listing, PublishOptions{})
	if !IsFatalTokenError(err) {
		t.Fatalf("应上抛致命凭证错误，实际 %v", err)
	}

	// 凭证错误不落刊登档
	stored, _ := fx.listingRepo.GetByProduct(context.Background(), p.ID)
	if stored.Status != model.ListingStatusPending || stored.LastError != "" {
		t.Errorf("凭证错误不应改写刊登状态: status=%s last_error=%q", stored.Status, stored.LastError)
	}
}
