package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 全局配置，启动时解析一次，之后只读
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Meli        MeliConfig
	Pricing     PricingConfig
	Publication PublicationConfig
	Batch       BatchConfig
	Tasks       TasksConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	DSN string
}

// MeliConfig 市场侧接入配置
type MeliConfig struct {
	BaseURL      string
	SiteID       string // 如 MEC (厄瓜多尔站)
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccountID    int64
	Environment  string // production | sandbox
	CurrencyID   string

	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Timeout      time.Duration
	Debug        bool
}

// PricingConfig 定价配置，全部使用 decimal 避免货币精度漂移
type PricingConfig struct {
	OperationalCost decimal.Decimal
	TargetMargin    decimal.Decimal
	ShippingFee     decimal.Decimal
	IvaRate         decimal.Decimal
	// CommissionRate 旧版固定费率，阶梯配置非法时的兜底
	CommissionRate decimal.Decimal
	Tiers          []CommissionTier
}

// CommissionTier 佣金阶梯：Max 为空表示无上界
type CommissionTier struct {
	Max  *decimal.Decimal
	Rate decimal.Decimal
}

// PublicationRule 上架规则：类目 → 最低价格阈值
// Category 已做 trim + 小写归一化
type PublicationRule struct {
	Category string
	MinPrice decimal.Decimal
}

type PublicationConfig struct {
	Rules          []PublicationRule
	FreshnessHours int
}

type BatchConfig struct {
	Limit           int
	DelayMs         int
	CloseAfterHours int
}

// TasksConfig 定时任务配置，spec 为空则各任务用自己的默认值
type TasksConfig struct {
	Enabled     bool
	PublishSpec string
	SyncSpec    string
	PauseSpec   string
	CloseSpec   string
	Sandbox     bool
}

// ==================== 加载 ====================

// Load 读取配置文件并解析为不可变配置
// 硬性错误 (比如定价小数不可解析、规则值类型非法) 直接失败；
// 软性错误 (佣金阶梯 JSON 非法) 打警告回退旧版费率，绝不中断启动
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MELI_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选，全部走默认值 + 环境变量也允许
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("config: 读取配置文件失败: %w", err)
		}
		log.Println("[Config] 未找到配置文件，使用默认值与环境变量")
	}

	cfg := &Config{
		Server:   ServerConfig{Addr: v.GetString("server.addr")},
		Database: DatabaseConfig{DSN: v.GetString("database.dsn")},
		Meli: MeliConfig{
			BaseURL:      v.GetString("meli.base_url"),
			SiteID:       v.GetString("meli.site_id"),
			ClientID:     v.GetString("meli.client_id"),
			ClientSecret: v.GetString("meli.client_secret"),
			RedirectURI:  v.GetString("meli.redirect_uri"),
			AccountID:    v.GetInt64("meli.account_id"),
			Environment:  v.GetString("meli.environment"),
			CurrencyID:   v.GetString("meli.currency_id"),
			RetryCount:   v.GetInt("meli.retry_count"),
			RetryWait:    time.Duration(v.GetInt("meli.retry_wait_ms")) * time.Millisecond,
			RetryMaxWait: time.Duration(v.GetInt("meli.retry_max_wait_ms")) * time.Millisecond,
			Timeout:      time.Duration(v.GetInt("meli.timeout_sec")) * time.Second,
			Debug:        v.GetBool("meli.debug"),
		},
		Publication: PublicationConfig{
			FreshnessHours: v.GetInt("publication.freshness_hours"),
		},
		Batch: BatchConfig{
			Limit:           v.GetInt("batch.limit"),
			DelayMs:         v.GetInt("batch.delay_ms"),
			CloseAfterHours: v.GetInt("batch.close_after_hours"),
		},
		Tasks: TasksConfig{
			Enabled:     v.GetBool("tasks.enabled"),
			PublishSpec: v.GetString("tasks.publish_spec"),
			SyncSpec:    v.GetString("tasks.sync_spec"),
			PauseSpec:   v.GetString("tasks.pause_spec"),
			CloseSpec:   v.GetString("tasks.close_spec"),
			Sandbox:     v.GetBool("tasks.sandbox"),
		},
	}

	pricing, err := loadPricing(v)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = *pricing

	rules, err := NormalizeRules(v.GetStringMap("publication.rules"))
	if err != nil {
		return nil, err
	}
	cfg.Publication.Rules = rules

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("meli.base_url", "https://api.mercadolibre.com")
	v.SetDefault("meli.site_id", "MEC")
	v.SetDefault("meli.environment", "production")
	v.SetDefault("meli.currency_id", "USD")
	v.SetDefault("meli.retry_count", 3)
	v.SetDefault("meli.retry_wait_ms", 500)
	v.SetDefault("meli.retry_max_wait_ms", 8000)
	v.SetDefault("meli.timeout_sec", 20)

	v.SetDefault("pricing.operational_cost", "0")
	v.SetDefault("pricing.target_margin", "0.20")
	v.SetDefault("pricing.shipping_fee", "0")
	v.SetDefault("pricing.iva_rate", "0.12")
	v.SetDefault("pricing.commission_rate", "0.15")
	v.SetDefault("pricing.commission_tiers", "")

	v.SetDefault("publication.freshness_hours", 72)

	v.SetDefault("batch.limit", 100)
	v.SetDefault("batch.delay_ms", 250)
	v.SetDefault("batch.close_after_hours", 48)

	v.SetDefault("tasks.enabled", true)
}

func loadPricing(v *viper.Viper) (*PricingConfig, error) {
	cfg := &PricingConfig{}
	for key, dst := range map[string]*decimal.Decimal{
		"pricing.operational_cost": &cfg.OperationalCost,
		"pricing.target_margin":    &cfg.TargetMargin,
		"pricing.shipping_fee":     &cfg.ShippingFee,
		"pricing.iva_rate":         &cfg.IvaRate,
		"pricing.commission_rate":  &cfg.CommissionRate,
	} {
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("config: %s 不是合法小数: %w", key, err)
		}
		*dst = d
	}
	cfg.Tiers = ParseCommissionTiers(v.GetString("pricing.commission_tiers"), cfg.CommissionRate)
	return cfg, nil
}

// ==================== 佣金阶梯 ====================

// ParseCommissionTiers 解析阶梯 JSON：[{"max":100,"rate":0.18},...,{"max":null,"rate":0.10}]
// 任何形态问题 (非数组 / 缺 rate / JSON 非法) 都回退为单一旧版费率并打警告，
// 这里绝不允许失败
func ParseCommissionTiers(raw string, legacyRate decimal.Decimal) []CommissionTier {
	fallback := []CommissionTier{{Max: nil, Rate: legacyRate}}

	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	var entries []struct {
		Max  *decimal.Decimal `json:"max"`
		Rate *decimal.Decimal `json:"rate"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("[Config] 佣金阶梯配置非法，回退固定费率 %s: %v", legacyRate, err)
		return fallback
	}
	if len(entries) == 0 {
		log.Printf("[Config] 佣金阶梯为空数组，回退固定费率 %s", legacyRate)
		return fallback
	}

	tiers := make([]CommissionTier, 0, len(entries))
	for i, e := range entries {
		if e.Rate == nil {
			log.Printf("[Config] 佣金阶梯第 %d 档缺少 rate，回退固定费率 %s", i, legacyRate)
			return fallback
		}
		tiers = append(tiers, CommissionTier{Max: e.Max, Rate: *e.Rate})
	}
	return tiers
}

// ==================== 上架规则 ====================

// NormalizeRules 规则值支持两种形态：裸数字阈值，或 {price_threshold: n} 对象
// 加载边界统一折叠为规范形态，下游只见一种表示
func NormalizeRules(values map[string]interface{}) ([]PublicationRule, error) {
	rules := make([]PublicationRule, 0, len(values))

	for category, raw := range values {
		name := strings.ToLower(strings.TrimSpace(category))
		if name == "" {
			return nil, fmt.Errorf("config: 上架规则包含空类目名")
		}

		threshold, err := ruleThreshold(raw)
		if err != nil {
			return nil, fmt.Errorf("config: 类目 %q 的规则值非法: %w", category, err)
		}
		rules = append(rules, PublicationRule{Category: name, MinPrice: threshold})
	}

	// map 遍历无序，排序保证规则顺序稳定
	sort.Slice(rules, func(i, j int) bool { return rules[i].Category < rules[j].Category })
	return rules, nil
}

func ruleThreshold(raw interface{}) (decimal.Decimal, error) {
	switch val := raw.(type) {
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case string:
		return decimal.NewFromString(val)
	case map[string]interface{}:
		inner, ok := val["price_threshold"]
		if !ok {
			return decimal.Zero, fmt.Errorf("对象形态缺少 price_threshold 字段")
		}
		if _, nested := inner.(map[string]interface{}); nested {
			return decimal.Zero, fmt.Errorf("price_threshold 不允许嵌套对象")
		}
		return ruleThreshold(inner)
	default:
		return decimal.Zero, fmt.Errorf("不支持的值类型 %T", raw)
	}
}
