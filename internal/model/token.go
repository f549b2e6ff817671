package model

import "time"

// TokenExpiryBuffer 过期安全窗口：临近过期一律视同已过期
const TokenExpiryBuffer = 5 * time.Minute

// 环境常量
const (
	EnvProduction = "production"
	EnvSandbox    = "sandbox"
)

// MeliToken OAuth2 凭证，每个 (账号, 环境) 一条
// 只由 AuthService 在刷新或首次换码时写入，本引擎从不删除
type MeliToken struct {
	BaseModel
	AccountID   int64  `gorm:"uniqueIndex:idx_token_account_env;not null"`
	Environment string `gorm:"size:20;uniqueIndex:idx_token_account_env;default:production"`

	AccessToken  string `gorm:"type:text"`
	RefreshToken string `gorm:"type:text"`
	ExpiresAt    time.Time
}

func (MeliToken) TableName() string {
	return "meli_tokens"
}

// IsExpired now >= expires_at - 5min 即视为过期
func (t *MeliToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-TokenExpiryBuffer))
}
