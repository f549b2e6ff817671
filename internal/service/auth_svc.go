package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"meli_sync_v1_202601/internal/model"
	"meli_sync_v1_202601/internal/repository"
	"meli_sync_v1_202601/pkg/meli"
)

// ==================== 凭证错误 ====================

var (
	// ErrTokenNotFound 账号尚未走完换码授权，对整轮批次是致命错误，直接上抛给操作者
	ErrTokenNotFound = errors.New("auth: 账号尚未授权，无可用凭证")
	// ErrTokenRefreshFailed 刷新链路断裂，致命
	ErrTokenRefreshFailed = errors.New("auth: 凭证刷新失败")
	// ErrTokenExchangeFailed 换码链路断裂，致命
	ErrTokenExchangeFailed = errors.New("auth: 授权码换取凭证失败")
)

// IsFatalTokenError 批次层判定：凭证类错误终止整轮，其余错误只记账
func IsFatalTokenError(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenRefreshFailed) ||
		errors.Is(err, ErrTokenExchangeFailed)
}

// ==================== 服务 ====================

// AuthService 凭证管理
// 同一账号的并发刷新未加锁：刷新前总是重查有效期，写入是单行 Save，
// 最坏情况是多刷一次，属于已接受的竞态
type AuthService struct {
	tokenRepo   repository.TokenRepository
	client      *meli.Client
	environment string

	now func() time.Time // 测试注入
}

// NewAuthService 创建凭证服务
func NewAuthService(tokenRepo repository.TokenRepository, client *meli.Client, environment string) *AuthService {
	if environment == "" {
		environment = model.EnvProduction
	}
	return &AuthService{
		tokenRepo:   tokenRepo,
		client:      client,
		environment: environment,
		now:         time.Now,
	}
}

// GetValidToken 返回保证在安全窗口内未过期的凭证，需要时先刷新
// 刷新成功才落库；任何失败都不产生写入
func (s *AuthService) GetValidToken(ctx context.Context, accountID int64) (*model.MeliToken, error) {
	token, err := s.tokenRepo.GetByAccount(ctx, accountID, s.environment)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w (account=%d env=%s)", ErrTokenNotFound, accountID, s.environment)
	}
	if err != nil {
		return nil, err
	}

	if !token.IsExpired(s.now()) {
		return token, nil
	}

	log.Printf("[Auth] 账号 %d 凭证临近过期，执行刷新", accountID)
	resp, err := s.client.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}

	token.AccessToken = resp.AccessToken
	// 远端返回的 refresh token 一律替换本地，不假设可复用
	token.RefreshToken = resp.RefreshToken
	token.ExpiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	if err := s.tokenRepo.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("auth: 凭证落库失败: %w", err)
	}
	return token, nil
}

// InitFromCode 首次 (或重新) 授权：一次性授权码换取凭证对，
// 按换码响应里的账号 id 幂等落库
func (s *AuthService) InitFromCode(ctx context.Context, code, redirectURI string) (*model.MeliToken, error) {
	resp, err := s.client.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	token := &model.MeliToken{
		AccountID:    resp.UserID,
		Environment:  s.environment,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if err := s.tokenRepo.Upsert(ctx, token); err != nil {
		return nil, fmt.Errorf("auth: 凭证落库失败: %w", err)
	}

	log.Printf("[Auth] 账号 %d 授权完成 (env=%s)", token.AccountID, s.environment)
	return token, nil
}
