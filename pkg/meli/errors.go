package meli

import (
	"errors"
	"fmt"
	"net/http"
)

// ==================== 错误类型 ====================

// ErrNoToken 发起鉴权请求时未携带 access token
// 这是调用方的程序错误，不走重试，直接快速失败
var ErrNoToken = errors.New("meli: 请求缺少 access token")

// ApiError 通用业务错误 (非 2xx)
// 保留状态码和原始响应体，供上层对校验类错误做模式匹配
type ApiError struct {
	StatusCode int
	Body       string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("meli api error [%d]: %s", e.StatusCode, e.Body)
}

// IsValidation 是否为 400 校验类错误 (发布自愈重试的触发条件)
func (e *ApiError) IsValidation() bool {
	return e.StatusCode == http.StatusBadRequest
}

// TokenExpiredError 401
// AuthService 应当已经提前刷新过 token，走到这里说明 token 被远端吊销
// 或存在刷新竞态，必须上抛给调用方裁决，不允许在传输层静默重试
type TokenExpiredError struct {
	Body string
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("meli token expired (401): %s", e.Body)
}

// RateLimitError 429 且重试预算已耗尽
// 调用方可以在批次层面整体退避
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("meli rate limited (429): %s", e.Body)
}

// AsValidationError 从错误链提取 400 校验错误
func AsValidationError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) && apiErr.IsValidation() {
		return apiErr, true
	}
	return nil, false
}
