package meli

// ==================== OAuth ====================

// TokenResponse /oauth/token 响应 (code 换取与 refresh 共用)
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// ==================== 类目 ====================

// CategoryPrediction /sites/{site}/domain_discovery/search 返回数组的单个元素
type CategoryPrediction struct {
	DomainID     string  `json:"domain_id"`
	DomainName   string  `json:"domain_name"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Relevance    float64 `json:"relevance,omitempty"`
}

// CategoryAttribute /categories/{id}/attributes 返回数组的单个元素
// 属性修复能力的实现方需要这些元信息来纠正被拒的属性值
type CategoryAttribute struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	ValueType string                   `json:"value_type"`
	Tags      map[string]bool          `json:"tags,omitempty"`
	Values    []CategoryAttributeValue `json:"values,omitempty"`
}

type CategoryAttributeValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
