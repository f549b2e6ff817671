package service

import (
	"context"
	"fmt"
	"net/url"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/pkg/meli"
)

// ==================== 外部能力接口 ====================

// AttributeFixer 属性修复能力
// 由 AI 服务方实现 (输入当前属性 + 商品规格 + 远端校验错误，产出修正后的属性列表)，
// 引擎只消费，不关心实现
type AttributeFixer interface {
	FixAttributes(ctx context.Context, product *model.Product,
		current []model.ListingAttribute, apiErr *meli.ApiError) ([]model.ListingAttribute, error)
}

// CategoryPredictor 类目预测能力
type CategoryPredictor interface {
	PredictCategory(ctx context.Context, title string) (string, error)
}

// ==================== 市场侧默认实现 ====================

// CatalogService 基于市场 domain_discovery 接口的类目预测与属性元数据查询
type CatalogService struct {
	client    *meli.Client
	auth      *AuthService
	accountID int64
	siteID    string
}

var _ CategoryPredictor = (*CatalogService)(nil)

// NewCatalogService 创建类目服务
func NewCatalogService(client *meli.Client, auth *AuthService, accountID int64, siteID string) *CatalogService {
	return &CatalogService{
		client:    client,
		auth:      auth,
		accountID: accountID,
		siteID:    siteID,
	}
}

// PredictCategory 用标题做类目探测，取相关度最高的一个
func (s *CatalogService) PredictCategory(ctx context.Context, title string) (string, error) {
	token, err := s.auth.GetValidToken(ctx, s.accountID)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/sites/%s/domain_discovery/search?q=%s&limit=1",
		s.siteID, url.QueryEscape(title))

	var predictions []meli.CategoryPrediction
	if err := s.client.GetInto(ctx, token.AccessToken, path, &predictions); err != nil {
		return "", err
	}
	if len(predictions) == 0 || predictions[0].CategoryID == "" {
		return "", fmt.Errorf("catalog: 标题 %q 未探测到类目", title)
	}
	return predictions[0].CategoryID, nil
}

// CategoryAttributes 类目属性元数据，供属性修复实现方参考
func (s *CatalogService) CategoryAttributes(ctx context.Context, categoryID string) ([]meli.CategoryAttribute, error) {
	token, err := s.auth.GetValidToken(ctx, s.accountID)
	if err != nil {
		return nil, err
	}

	var attrs []meli.CategoryAttribute
	path := fmt.Sprintf("/categories/%s/attributes", categoryID)
	if err := s.client.GetInto(ctx, token.AccessToken, path, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
