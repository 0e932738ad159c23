package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"recipe-ingest/internal/pkg/common"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	Generator   GeneratorConfig  `mapstructure:"generator"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	Gemini      GeminiConfig     `mapstructure:"gemini"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Queue       QueueConfig      `mapstructure:"queue"`
	Pipeline    PipelineConfig   `mapstructure:"pipeline"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFile     string           `mapstructure:"log_file"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// ModelConfig 單一模型槽位（主模型或備援模型）
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// GeneratorConfig 生成器配置
type GeneratorConfig struct {
	Primary     ModelConfig   `mapstructure:"primary"`
	Fallback    ModelConfig   `mapstructure:"fallback"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GeminiConfig Gemini 配置
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig 資料庫配置
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// QueueConfig 生成槽位設定（同時進行的 LLM 呼叫上限）
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// PrecheckConfig 生成前的近似重複檢查
type PrecheckConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxKeywords int  `mapstructure:"max_keywords"`
	MinOverlap  int  `mapstructure:"min_overlap"`
}

// PipelineConfig 管線設定
type PipelineConfig struct {
	Workers              int            `mapstructure:"workers"`
	MaxBatchSize         int            `mapstructure:"max_batch_size"`
	MinInstructionLength int            `mapstructure:"min_instruction_length"`
	StrictMode           bool           `mapstructure:"strict_mode"`
	SystemOwner          string         `mapstructure:"system_owner"`
	Precheck             PrecheckConfig `mapstructure:"precheck"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// 支援的提供者與資料庫驅動
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverMemory   = "memory"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 為選用
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("generator.primary.model", "PRIMARY_MODEL")
	_ = v.BindEnv("generator.fallback.model", "FALLBACK_MODEL")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("pipeline.strict_mode", "STRICT_MODE")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	// 選用的 YAML 設定檔
	v.SetConfigName("ingest")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-ingest")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.idle_timeout", "120s")
	// server.request_timeout 未設定時由 router 依批次上限推算
	v.SetDefault("server.max_body_bytes", 1<<20)

	// 生成器設定
	v.SetDefault("generator.primary.provider", ProviderOpenRouter)
	v.SetDefault("generator.primary.model", "openai/gpt-4o-mini")
	v.SetDefault("generator.primary.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("generator.primary.max_tokens", 2048)
	v.SetDefault("generator.primary.temperature", 0.7)
	v.SetDefault("generator.fallback.provider", ProviderOpenRouter)
	v.SetDefault("generator.fallback.model", "mistralai/mistral-small")
	v.SetDefault("generator.fallback.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("generator.fallback.max_tokens", 2048)
	v.SetDefault("generator.fallback.temperature", 0.5)
	v.SetDefault("generator.call_timeout", "90s")

	// 資料庫設定
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.connect_timeout", "30s")

	// 快取設定
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 生成槽位
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_size", 100)

	// 管線設定
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.max_batch_size", 50)
	v.SetDefault("pipeline.min_instruction_length", 50)
	v.SetDefault("pipeline.strict_mode", true)
	v.SetDefault("pipeline.system_owner", "system")
	v.SetDefault("pipeline.precheck.enabled", true)
	v.SetDefault("pipeline.precheck.max_keywords", 4)
	v.SetDefault("pipeline.precheck.min_overlap", 2)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "5s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/ingest.log")
}

// validateConfig 驗證設定，任何缺漏都是 ConfigurationError
func validateConfig(config *Config) error {
	fail := func(format string, args ...any) error {
		return common.NewConfigurationError(fmt.Sprintf(format, args...))
	}

	if config.Server.Port <= 0 {
		return fail("server port is required")
	}

	for slot, m := range map[string]ModelConfig{"primary": config.Generator.Primary, "fallback": config.Generator.Fallback} {
		if m.Model == "" {
			return fail("generator.%s.model is required", slot)
		}
		switch m.Provider {
		case ProviderOpenRouter:
			if config.OpenRouter.APIKey == "" {
				return fail("OPENROUTER_API_KEY is required for generator.%s", slot)
			}
			if m.BaseURL == "" {
				return fail("generator.%s.base_url is required", slot)
			}
		case ProviderGemini:
			if config.Gemini.APIKey == "" {
				return fail("GEMINI_API_KEY is required for generator.%s", slot)
			}
		default:
			return fail("unknown provider %q for generator.%s", m.Provider, slot)
		}
	}
	if config.Generator.CallTimeout <= 0 {
		return fail("invalid generator call timeout")
	}

	switch config.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if config.Database.DSN == "" {
			return fail("DATABASE_URL is required for driver %s", config.Database.Driver)
		}
	case DriverMemory:
	default:
		return fail("unknown database driver %q", config.Database.Driver)
	}

	if config.Cache.Enabled {
		if config.Cache.Backend != CacheBackendMemory && config.Cache.Backend != CacheBackendRedis {
			return fail("unknown cache backend %q", config.Cache.Backend)
		}
		if config.Cache.MaxSize <= 0 {
			return fail("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fail("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fail("invalid cache cleanup interval")
		}
	}

	if config.Queue.Workers <= 0 {
		return fail("invalid queue workers")
	}
	if config.Pipeline.Workers <= 0 {
		return fail("invalid pipeline workers")
	}
	if config.Pipeline.MaxBatchSize <= 0 {
		return fail("invalid pipeline max batch size")
	}
	if config.Pipeline.MinInstructionLength <= 0 {
		return fail("invalid minimum instruction length")
	}
	if config.Pipeline.Precheck.MaxKeywords <= 0 || config.Pipeline.Precheck.MinOverlap <= 0 {
		return fail("invalid precheck thresholds")
	}

	return nil
}
