package service

import (
	"strings"

	"meli_sync_v1_202601/internal/model"
)

// IsStockYes 旗标归一化：去两端空白后与 "SI" 不分大小写比较
// 任何其他取值 (含空串) 都算无货
func IsStockYes(flag string) bool {
	return strings.EqualFold(strings.TrimSpace(flag), model.StockYes)
}

// StockService 库存引擎，纯函数
// 数据库侧的等价聚合见 model.StockQuantitySQL，两者必须对任意输入一致
type StockService struct{}

// NewStockService 创建库存引擎
func NewStockService() *StockService {
	return &StockService{}
}

// AvailableQuantity 可售数量
// 主旗标无货时直接归零，不看分旗标；否则计数有货的门店分旗标
func (s *StockService) AvailableQuantity(p *model.Product) int {
	if !IsStockYes(p.StockPrincipal) {
		return 0
	}
	count := 0
	for _, flag := range p.BranchFlags() {
		if IsStockYes(flag) {
			count++
		}
	}
	return count
}
