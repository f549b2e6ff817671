package model

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StockYes 库存旗标的"有货"取值，比较时忽略大小写与两端空白
// 其余取值 (含空串) 一律按无货处理
const StockYes = "SI"

// Product 目录商品的读投影
// 主存储和抓取链路归目录系统所有，这里只落发布引擎需要的字段
type Product struct {
	BaseModel
	Code  string `gorm:"size:50;uniqueIndex"` // 目录编码，定向发布用
	Title string `gorm:"size:255"`

	Price    *decimal.Decimal `gorm:"type:numeric(12,2)"` // 成本价，可能未抓到
	Category *string          `gorm:"size:100;index"`

	IsActive    bool `gorm:"default:true;index"`
	MeliEnabled bool `gorm:"default:false;index"` // 目录级上架开关

	// --- 库存旗标 (主旗标 + 各门店分旗标，三态 "SI"/"NO"/未知) ---
	StockPrincipal string `gorm:"size:20"`
	StockNorte     string `gorm:"size:20"`
	StockSur       string `gorm:"size:20"`
	StockCentro    string `gorm:"size:20"`
	StockValle     string `gorm:"size:20"`

	TechSpecs      datatypes.JSON `gorm:"type:jsonb"`
	SeoTitle       string         `gorm:"size:255"`
	SeoDescription string         `gorm:"type:text"`
	ImageURLs      pq.StringArray `gorm:"type:text[]"`
}

func (Product) TableName() string {
	return "products"
}

// BranchFlags 各门店分旗标，顺序固定
func (p *Product) BranchFlags() []string {
	return []string{p.StockNorte, p.StockSur, p.StockCentro, p.StockValle}
}

// stockBranchColumns 与 BranchFlags 一一对应的列名
var stockBranchColumns = []string{"stock_norte", "stock_sur", "stock_centro", "stock_valle"}

// StockQuantitySQL 与 StockService.AvailableQuantity 等价的 SQL 聚合表达式，
// 供批量列表视图下推使用。两种形态必须对任意输入组合一致
func StockQuantitySQL() string {
	branch := func(col string) string {
		return fmt.Sprintf("(CASE WHEN UPPER(TRIM(COALESCE(%s, ''))) = 'SI' THEN 1 ELSE 0 END)", col)
	}
	parts := make([]string, 0, len(stockBranchColumns))
	for _, col := range stockBranchColumns {
		parts = append(parts, branch(col))
	}
	return fmt.Sprintf(
		"CASE WHEN UPPER(TRIM(COALESCE(stock_principal, ''))) = 'SI' THEN %s ELSE 0 END",
		strings.Join(parts, " + "),
	)
}
