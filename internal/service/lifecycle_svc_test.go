package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
)

type lifecycleFixture struct {
	db          *gorm.DB
	listingRepo repository.ListingRepository
	svc         *LifecycleService
	putCalls    *int32
	lastStatus  *string
}

func newLifecycleFixture(t *testing.T, putStatus int) *lifecycleFixture {
	t.Helper()
	db := setupSvcDB(t)
	seedToken(t, db, 777)

	var putCalls int32
	lastStatus := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&putCalls, 1)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		lastStatus = payload["status"]
		w.WriteHeader(putStatus)
		if putStatus == http.StatusOK {
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	listingRepo := repository.NewListingRepository(db)
	client := newMeliTestClient(srv.URL)
	auth := NewAuthService(repository.NewTokenRepository(db), client, "")

	return &lifecycleFixture{
		db:          db,
		listingRepo: listingRepo,
		svc:         NewLifecycleService(listingRepo, auth, client, 777),
		putCalls:    &putCalls,
		lastStatus:  &lastStatus,
	}
}

func seedRemoteListing(t *testing.T, db *gorm.DB, status model.ListingStatus) *model.Listing {
	t.Helper()
	p := seedPublishProduct(t, db)
	listing := &model.Listing{
		ProductID: p.ID,
		RemoteID:  "MEC111",
		Status:    status,
	}
	if err := db.Create(listing).Error; err != nil {
		t.Fatalf("刊登落库失败: %v", err)
	}
	listing.Product = p
	return listing
}

func TestPause_Success(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusOK)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusActive)

	if err := fx.svc.Pause(context.Background(), listing, false); err != nil {
		t.Fatalf("暂停失败: %v", err)
	}
	if *fx.lastStatus != "paused" {
		t.Errorf("远端应收到 paused，实际 %q", *fx.lastStatus)
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), listing.ProductID)
	if stored.Status != model.ListingStatusPaused {
		t.Errorf("本地应置 PAUSED，实际 %s", stored.Status)
	}
}

func TestPause_RemoteFailureKeepsLocal(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusInternalServerError)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusActive)

	if err := fx.svc.Pause(context.Background(), listing, false); err == nil {
		t.Fatal("远端失败应上抛")
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), listing.ProductID)
	if stored.Status != model.ListingStatusActive {
		t.Errorf("远端失败后本地状态应保持 ACTIVE，实际 %s", stored.Status)
	}
}

func TestPause_NoRemoteRejected(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusOK)
	p := seedPublishProduct(t, fx.db)
	listing := &model.Listing{ProductID: p.ID, Status: model.ListingStatusPending}
	fx.db.Create(listing)

	if err := fx.svc.Pause(context.Background(), listing, false); err == nil {
		t.Error("无远端 id 的刊登不可暂停")
	}
	if atomic.LoadInt32(fx.putCalls) != 0 {
		t.Error("不应发出网络请求")
	}
}

func TestPause_DryRun(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusOK)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusActive)

	if err := fx.svc.Pause(context.Background(), listing, true); err != nil {
		t.Fatalf("dry-run 暂停失败: %v", err)
	}
	if atomic.LoadInt32(fx.putCalls) != 0 {
		t.Error("dry-run 不应发网络请求")
	}

	stored, _ := fx.listingRepo.GetByProduct(context.Background(), listing.ProductID)
	if stored.Status != model.ListingStatusActive {
		t.Error("dry-run 不应改写本地状态")
	}
}

func TestClose_DeletesLocalRow(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusOK)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusPaused)

	if err := fx.svc.Close(context.Background(), listing, false); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if *fx.lastStatus != "closed" {
		t.Errorf("远端应收到 closed，实际 %q", *fx.lastStatus)
	}

	// 物理删除：同商品重建不受唯一索引阻挡
	var count int64
	fx.db.Unscoped().Model(&model.Listing{}).Where("product_id = ?", listing.ProductID).Count(&count)
	if count != 0 {
		t.Errorf("关闭后本地行应物理删除，实际剩 %d 行", count)
	}

	recreated := &model.Listing{ProductID: listing.ProductID, Status: model.ListingStatusPending}
	if err := fx.db.Create(recreated).Error; err != nil {
		t.Errorf("关闭后同商品应可重建刊登: %v", err)
	}
}

func TestClose_RemoteFailureKeepsRow(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusInternalServerError)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusPaused)

	if err := fx.svc.Close(context.Background(), listing, false); err == nil {
		t.Fatal("远端失败应上抛")
	}

	var count int64
	fx.db.Model(&model.Listing{}).Where("product_id = ?", listing.ProductID).Count(&count)
	if count != 1 {
		t.Error("远端未确认关闭前不得删除本地行")
	}
}

func TestClose_DryRun(t *testing.T) {
	fx := newLifecycleFixture(t, http.StatusOK)
	listing := seedRemoteListing(t, fx.db, model.ListingStatusPaused)

	if err := fx.svc.Close(context.Background(), listing, true); err != nil {
		t.Fatalf("dry-run 关闭失败: %v", err)
	}
	if atomic.LoadInt32(fx.putCalls) != 0 {
		t.Error("dry-run 不应发网络请求")
	}

	var count int64
	fx.db.Model(&model.Listing{}).Where("product_id = ?", listing.ProductID).Count(&count)
	if count != 1 {
		t.Error("dry-run 不应删除本地行")
	}
}
