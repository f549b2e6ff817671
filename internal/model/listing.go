package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 状态机 ====================

// ListingStatus 刊登状态
// PENDING → ACTIVE (发布成功)
// PENDING/ACTIVE → ERROR (发布或同步失败)
// ERROR → ACTIVE 仅通过新一次发布/同步尝试
type ListingStatus string

const (
	ListingStatusPending ListingStatus = "PENDING"
	ListingStatusActive  ListingStatus = "ACTIVE"
	ListingStatusPaused  ListingStatus = "PAUSED"
	ListingStatusError   ListingStatus = "ERROR"
)

// ListingAttribute 刊登属性，顺序有意义
type ListingAttribute struct {
	ID        string `json:"id"`
	ValueName string `json:"value_name"`
}

// ==================== 模型 ====================

// Listing 市场侧刊登记录，与目录商品严格 1:1
// 价格/数量字段是最近一次计算或推送值的缓存，SyncService 只在新值不同时推送
type Listing struct {
	BaseModel
	ProductID int64    `gorm:"uniqueIndex;not null"`
	Product   *Product `gorm:"foreignKey:ProductID"`

	// RemoteID 远端 item id (如 MEC1234567890)，空串表示从未创建成功，
	// 此时无条件重试创建是安全的
	RemoteID string        `gorm:"size:50;index"`
	Status   ListingStatus `gorm:"size:20;index;default:PENDING"`

	CategoryID string `gorm:"size:50"`

	FinalPrice        decimal.Decimal `gorm:"type:numeric(12,2)"`
	NetPrice          decimal.Decimal `gorm:"type:numeric(12,2)"`
	Profit            decimal.Decimal `gorm:"type:numeric(12,2)"`
	AvailableQuantity int             `gorm:"default:0"`

	Attributes datatypes.JSON `gorm:"type:jsonb"`

	LastSyncedAt *time.Time
	LastError    string `gorm:"type:text"`
}

func (Listing) TableName() string {
	return "meli_listings"
}

// HasRemote 是否已经成功创建过远端刊登
func (l *Listing) HasRemote() bool {
	return l.RemoteID != ""
}

// AttributeList 解出有序属性列表，空值安全
func (l *Listing) AttributeList() []ListingAttribute {
	if len(l.Attributes) == 0 {
		return nil
	}
	var attrs []ListingAttribute
	if err := json.Unmarshal(l.Attributes, &attrs); err != nil {
		return nil
	}
	return attrs
}

// SetAttributeList 写回属性列表
func (l *Listing) SetAttributeList(attrs []ListingAttribute) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	l.Attributes = raw
	return nil
}
