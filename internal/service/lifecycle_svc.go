package service

import (
	"context"
	"fmt"
	"log"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/meli"
)

// LifecycleService 刊登暂停/关闭
// 共同约束：必须已有远端 id；dryRun 在任何网络请求前短路；
// 远端失败时本地状态保持原样，由批次层计为失败而不上抛中断
type LifecycleService struct {
	listingRepo repository.ListingRepository
	auth        *AuthService
	client      *meli.Client
	accountID   int64
}

// NewLifecycleService 创建生命周期服务
func NewLifecycleService(listingRepo repository.ListingRepository, auth *AuthService, client *meli.Client, accountID int64) *LifecycleService {
	return &LifecycleService{
		listingRepo: listingRepo,
		auth:        auth,
		client:      client,
		accountID:   accountID,
	}
}

// Pause 远端置 paused，成功后本地置 PAUSED
func (s *LifecycleService) Pause(ctx context.Context, listing *model.Listing, dryRun bool) error {
	if !listing.HasRemote() {
		return fmt.Errorf("lifecycle: 刊登 %d 无远端 id，无法暂停", listing.ID)
	}
	if dryRun {
		return nil
	}

	if err := s.putStatus(ctx, listing, "paused"); err != nil {
		return err
	}
	if err := s.listingRepo.UpdateFields(ctx, listing.ID, map[string]interface{}{
		"status": model.ListingStatusPaused,
	}); err != nil {
		return err
	}
	listing.Status = model.ListingStatusPaused
	log.Printf("[Lifecycle] 刊登 %d (item=%s) 已暂停", listing.ID, listing.RemoteID)
	return nil
}

// Close 远端置 closed，确认后物理删除本地刊登行 (下架而非暂停)
func (s *LifecycleService) Close(ctx context.Context, listing *model.Listing, dryRun bool) error {
	if !listing.HasRemote() {
		return fmt.Errorf("lifecycle: 刊登 %d 无远端 id，无法关闭", listing.ID)
	}
	if dryRun {
		return nil
	}

	if err := s.putStatus(ctx, listing, "closed"); err != nil {
		return err
	}
	if err := s.listingRepo.HardDelete(ctx, listing.ID); err != nil {
		return err
	}
	log.Printf("[Lifecycle] 刊登 %d (item=%s) 已关闭并删除本地记录", listing.ID, listing.RemoteID)
	return nil
}

func (s *LifecycleService) putStatus(ctx context.Context, listing *model.Listing, status string) error {
	token, err := s.auth.GetValidToken(ctx, s.accountID)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, token.AccessToken, "/items/"+listing.RemoteID,
		map[string]interface{}{"status": status})
	return err
}
