package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig 存储配置
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig 会话令牌配置
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// TenantConfig 租户配置
type TenantConfig struct {
	DefaultCompanyID int64 `mapstructure:"default_company_id"`
}

// CacheConfig 会话缓存配置
type CacheConfig struct {
	MaxSizeMB   int `mapstructure:"max_size_mb"`
	CounterSize int `mapstructure:"counter_size"`
	TTLMinutes  int `mapstructure:"ttl_minutes"`
}

// SessionConfig 会话上限配置; 空闲超时取 auth.token_ttl_minutes
type SessionConfig struct {
	MaxSessions int `mapstructure:"max_sessions"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BusConfig 面板间事件总线配置
type BusConfig struct {
	Driver string      `mapstructure:"driver"` // memory or redis
	Redis  RedisConfig `mapstructure:"redis"`
}

// IngestConfig Kafka 数据接入配置
type IngestConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// AggregationConfig 聚合配置
type AggregationConfig struct {
	IncludeLastBucket bool `mapstructure:"include_last_bucket"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	FakeDataPerMinute float64 `mapstructure:"fake_data_per_minute"`
	Burst             int     `mapstructure:"burst"`
	SessionsPerMinute float64 `mapstructure:"sessions_per_minute"` // 每个客户端 IP
	SessionBurst      int     `mapstructure:"session_burst"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config 应用配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Tenant      TenantConfig      `mapstructure:"tenant"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Session     SessionConfig     `mapstructure:"session"`
	Bus         BusConfig         `mapstructure:"bus"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Log         LogConfig         `mapstructure:"log"`
}

// Load 加载配置: config.yaml (可选) + BEACONS_ 环境变量 + 默认值
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BEACONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "./data/beacons/beacons.db")

	v.SetDefault("auth.jwt_secret", "your-secret-key-change-in-production")
	v.SetDefault("auth.token_ttl_minutes", 8*60)

	v.SetDefault("tenant.default_company_id", 1)

	v.SetDefault("cache.max_size_mb", 256)
	v.SetDefault("cache.counter_size", 100000)
	v.SetDefault("cache.ttl_minutes", 8*60)

	v.SetDefault("session.max_sessions", 1000)

	v.SetDefault("bus.driver", "memory")
	v.SetDefault("bus.redis.address", "localhost:6379")
	v.SetDefault("bus.redis.password", "")
	v.SetDefault("bus.redis.db", 0)

	v.SetDefault("ingest.enabled", false)
	v.SetDefault("ingest.brokers", []string{"localhost:9092"})
	v.SetDefault("ingest.topic", "beacon-pings")
	v.SetDefault("ingest.group_id", "beacons-backend")

	v.SetDefault("aggregation.include_last_bucket", false)

	v.SetDefault("ratelimit.fake_data_per_minute", 2.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("ratelimit.sessions_per_minute", 30.0)
	v.SetDefault("ratelimit.session_burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}
