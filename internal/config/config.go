// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Billing       BillingConfig       `yaml:"billing" mapstructure:"billing"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"required"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env" validate:"oneof=development staging production test"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host" validate:"required"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database" validate:"required"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host" validate:"required"`
	Port         int           `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// GenerationStateTTL 取消标记与生成状态的过期时间
	GenerationStateTTL time.Duration `yaml:"generation_state_ttl" mapstructure:"generation_state_ttl"`
}

// StorageConfig 附件存储配置
type StorageConfig struct {
	Attachments AttachmentStorageConfig `yaml:"attachments" mapstructure:"attachments"`
}

// AttachmentStorageConfig 附件访问配置
type AttachmentStorageConfig struct {
	// PublicBaseURL 存储引用拼接后即为可访问 URL
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`
	// SignedURLTTL 带签名 URL 的有效期，仅作为查询参数透传
	SignedURLTTL time.Duration `yaml:"signed_url_ttl" mapstructure:"signed_url_ttl"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// DefaultModel 提供商未配置时的全局兜底模型
	DefaultModel string                    `yaml:"default_model" mapstructure:"default_model" validate:"required"`
	Providers    map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// CatalogPath 模型元数据文件（定价/能力），支持热更新
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Models  []string      `yaml:"models" mapstructure:"models"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GenerationConfig 生成编排配置
type GenerationConfig struct {
	Timeout               time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	SlowTimeout           time.Duration `yaml:"slow_timeout" mapstructure:"slow_timeout" validate:"gt=0"`
	SlowProviders         []string      `yaml:"slow_providers" mapstructure:"slow_providers"`
	PersistInterval       time.Duration `yaml:"persist_interval" mapstructure:"persist_interval" validate:"gte=0"`
	CharsPerToken         int           `yaml:"chars_per_token" mapstructure:"chars_per_token" validate:"min=1"`
	EstimatedOutputTokens int           `yaml:"estimated_output_tokens" mapstructure:"estimated_output_tokens" validate:"min=0"`
	MaxToolSteps          int           `yaml:"max_tool_steps" mapstructure:"max_tool_steps" validate:"min=1"`
	AttachmentConcurrency int           `yaml:"attachment_concurrency" mapstructure:"attachment_concurrency" validate:"min=1"`
	DefaultTemperature    float64       `yaml:"default_temperature" mapstructure:"default_temperature" validate:"gte=0,lte=2"`
}

// BillingConfig 计费配置
type BillingConfig struct {
	DefaultPlan     string                `yaml:"default_plan" mapstructure:"default_plan" validate:"required"`
	Plans           map[string]PlanConfig `yaml:"plans" mapstructure:"plans"`
	FallbackPricing PricingConfig         `yaml:"fallback_pricing" mapstructure:"fallback_pricing"`
	ResetPeriod     time.Duration         `yaml:"reset_period" mapstructure:"reset_period" validate:"gt=0"`
}

// PlanConfig 套餐额度
type PlanConfig struct {
	CreditsLimit       int64   `yaml:"credits_limit" mapstructure:"credits_limit"`
	MaxSpendingDollars float64 `yaml:"max_spending_dollars" mapstructure:"max_spending_dollars"`
}

// PricingConfig 每千 token 价格（美元）
type PricingConfig struct {
	InputPerK  float64 `yaml:"input_per_k" mapstructure:"input_per_k"`
	OutputPerK float64 `yaml:"output_per_k" mapstructure:"output_per_k"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Stream  string `yaml:"stream" mapstructure:"stream"`
	MaxLen  int64  `yaml:"max_len" mapstructure:"max_len"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json text"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	// Enabled 为 false 时从 X-User-ID 头读取用户，仅用于本地开发
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	Issuer     string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration time.Duration `yaml:"expiration" mapstructure:"expiration"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// GenerationsPerMinute 每个用户每分钟可发起的生成次数
	GenerationsPerMinute int `yaml:"generations_per_minute" mapstructure:"generations_per_minute"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// IsSlowProvider 判断提供商是否使用长超时
func (c GenerationConfig) IsSlowProvider(provider string) bool {
	for _, p := range c.SlowProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// TimeoutFor 返回指定提供商的生成超时
func (c GenerationConfig) TimeoutFor(provider string) time.Duration {
	if c.IsSlowProvider(provider) {
		return c.SlowTimeout
	}
	return c.Timeout
}

// Plan 返回套餐配置，未知套餐回落到默认套餐
func (c BillingConfig) Plan(tier string) (string, PlanConfig) {
	if p, ok := c.Plans[tier]; ok {
		return tier, p
	}
	return c.DefaultPlan, c.Plans[c.DefaultPlan]
}
