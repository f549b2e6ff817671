package service

import (
	"github.com/shopspring/decimal"

	"meli_sync_v1_202601/pkg/config"
)

// PriceResult 定价结果，均为 decimal 并做两位小数的四舍五入 (half-up)
type PriceResult struct {
	FinalPrice decimal.Decimal
	NetPrice   decimal.Decimal
	Profit     decimal.Decimal
}

// PricingService 定价引擎，纯函数，无副作用
type PricingService struct {
	cfg *config.PricingConfig
}

// NewPricingService 创建定价引擎
func NewPricingService(cfg *config.PricingConfig) *PricingService {
	return &PricingService{cfg: cfg}
}

// CommissionRate 阶梯佣金解析：取第一个 max 为空或 base_cost <= max 的档位，
// 边界含等于。阶梯在配置加载时已保证至少有一个兜底档
func (s *PricingService) CommissionRate(baseCost decimal.Decimal) decimal.Decimal {
	for _, tier := range s.cfg.Tiers {
		if tier.Max == nil || baseCost.LessThanOrEqual(*tier.Max) {
			return tier.Rate
		}
	}
	return s.cfg.CommissionRate
}

// Calculate 由进货成本推导最终售价/净价/毛利
// 公式按序：
//
//	internal_cost = base_cost + operational_cost
//	desired_net   = internal_cost * (1 + target_margin)
//	net_price     = (desired_net + shipping_fee) / (1 - commission_rate)
//	final_price   = net_price * (1 + iva_rate)
//	profit        = desired_net - internal_cost
//
// 全程 decimal，只在每个输出字段的最后一步做舍入
func (s *PricingService) Calculate(baseCost decimal.Decimal) PriceResult {
	one := decimal.NewFromInt(1)
	rate := s.CommissionRate(baseCost)

	internalCost := baseCost.Add(s.cfg.OperationalCost)
	desiredNet := internalCost.Mul(one.Add(s.cfg.TargetMargin))
	netPrice := desiredNet.Add(s.cfg.ShippingFee).Div(one.Sub(rate))
	finalPrice := netPrice.Mul(one.Add(s.cfg.IvaRate))
	profit := desiredNet.Sub(internalCost)

	return PriceResult{
		FinalPrice: finalPrice.Round(2),
		NetPrice:   netPrice.Round(2),
		Profit:     profit.Round(2),
	}
}
