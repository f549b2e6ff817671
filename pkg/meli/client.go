package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL 生产与沙箱共用同一网关，沙箱通过测试账号隔离
const DefaultBaseURL = "https://api.mercadolibre.com"

// ClientConfig 客户端配置 (由 pkg/config 装配)
type ClientConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// 重试预算：瞬时网络错误与 429/5xx 自动重试，指数退避
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration

	Timeout time.Duration
	Debug   bool
}

// Client 市场 API 客户端
// 统一负责 Bearer 注入、瞬时故障重试和错误类型判别
type Client struct {
	http         *resty.Client
	clientID     string
	clientSecret string
}

// NewClient 创建客户端
// 它是全系统对市场侧发起请求的唯一入口
func NewClient(cfg *ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = 8 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetDebug(cfg.Debug).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "MeliSync-Go-App/1.0").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 网络层错误一律重试
			if err != nil {
				return true
			}
			// 仅限流和网关类错误重试；401/400 等业务错误立即上抛
			switch r.StatusCode() {
			case http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout:
				return true
			}
			return false
		})

	return &Client{
		http:         httpClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// ==================== 通用请求 ====================

// Get 鉴权 GET，响应为 JSON 对象
func (c *Client) Get(ctx context.Context, token, path string) (map[string]interface{}, error) {
	return c.execute(ctx, http.MethodGet, token, path, nil)
}

// Post 鉴权 POST
func (c *Client) Post(ctx context.Context, token, path string, body interface{}) (map[string]interface{}, error) {
	return c.execute(ctx, http.MethodPost, token, path, body)
}

// Put 鉴权 PUT
func (c *Client) Put(ctx context.Context, token, path string, body interface{}) (map[string]interface{}, error) {
	return c.execute(ctx, http.MethodPut, token, path, body)
}

// GetInto 鉴权 GET，响应解析到调用方提供的结构 (数组类接口用)
func (c *Client) GetInto(ctx context.Context, token, path string, out interface{}) error {
	if token == "" {
		return ErrNoToken
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		Get(path)
	if err != nil {
		return fmt.Errorf("meli 请求失败: %w", err)
	}
	if derr := c.discriminate(resp); derr != nil {
		return derr
	}
	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("meli 响应解析失败: %w", err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, method, token, path string, body interface{}) (map[string]interface{}, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("meli 请求失败: %w", err)
	}
	if derr := c.discriminate(resp); derr != nil {
		return nil, derr
	}

	// 2xx 空响应体按空对象处理，不报解析错误
	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("meli 响应解析失败: %w", err)
	}
	return out, nil
}

// discriminate 状态码判别
// 走到这里时重试预算已在 resty 层耗尽，剩下的都是要上抛的终态
func (c *Client) discriminate(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return &TokenExpiredError{Body: resp.String()}
	case resp.StatusCode() == http.StatusTooManyRequests:
		return &RateLimitError{Body: resp.String()}
	case resp.IsError():
		return &ApiError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// ==================== OAuth (客户端凭证，不走 Bearer) ====================

// ExchangeCode 一次性授权码换取 token 对
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"code":          code,
		"redirect_uri":  redirectURI,
	})
}

// RefreshToken 用 refresh token 换取新 token 对
// 远端每次都会轮换 refresh token，调用方必须整体替换本地存储
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenRequest(ctx context.Context, form map[string]string) (*TokenResponse, error) {
	var tokenResp TokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(form).
		SetResult(&tokenResp).
		Post("/oauth/token")
	if err != nil {
		return nil, fmt.Errorf("meli oauth 请求失败: %w", err)
	}
	if derr := c.discriminate(resp); derr != nil {
		return nil, derr
	}
	if tokenResp.AccessToken == "" {
		return nil, &ApiError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return &tokenResp, nil
}
