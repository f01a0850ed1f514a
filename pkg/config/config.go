// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Fees      FeesConfig      `mapstructure:"fees"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 返回监听地址
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：postgres, mysql, sqlite
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled         bool          `mapstructure:"log_enabled"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	// 启动时自动建表并写入默认费率
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// 为空时使用 service_name
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string            `mapstructure:"brokers"`
	ClientID string              `mapstructure:"client_id"`
	Topics   KafkaTopicsConfig   `mapstructure:"topics"`
	Security KafkaSecurityConfig `mapstructure:"security"`
	Producer KafkaProducerConfig `mapstructure:"producer"`
	Consumer KafkaConsumerConfig `mapstructure:"consumer"`
}

// KafkaTopicsConfig 主题名称
type KafkaTopicsConfig struct {
	OrderEvents string `mapstructure:"order_events"`
}

// KafkaSecurityConfig 认证与传输加密
type KafkaSecurityConfig struct {
	// PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL
	Protocol string `mapstructure:"protocol"`
	// PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLMechanism      string `mapstructure:"sasl_mechanism"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	CALocation         string `mapstructure:"ca_location"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// KafkaProducerConfig 生产者配置
type KafkaProducerConfig struct {
	// all, leader, none
	Acks              string `mapstructure:"acks"`
	Retries           int    `mapstructure:"retries"`
	MaxInFlight       int    `mapstructure:"max_in_flight"`
	EnableIdempotence bool   `mapstructure:"enable_idempotence"`
	// none, gzip, snappy, lz4, zstd
	Compression  string        `mapstructure:"compression"`
	Linger       time.Duration `mapstructure:"linger"`
	BatchSize    int           `mapstructure:"batch_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
	// 主题不存在时由 broker 自动创建
	AllowAutoTopicCreation bool `mapstructure:"allow_auto_topic_creation"`
}

// KafkaConsumerConfig 消费者配置
type KafkaConsumerConfig struct {
	GroupID string   `mapstructure:"group_id"`
	Topics  []string `mapstructure:"topics"`
	// earliest, latest
	AutoOffsetReset       string        `mapstructure:"auto_offset_reset"`
	EnableAutoCommit      bool          `mapstructure:"enable_auto_commit"`
	AutoCommitInterval    time.Duration `mapstructure:"auto_commit_interval"`
	SessionTimeout        time.Duration `mapstructure:"session_timeout"`
	PollTimeout           time.Duration `mapstructure:"poll_timeout"`
	RetryBackoff          time.Duration `mapstructure:"retry_backoff"`
	MaxProcessingAttempts int           `mapstructure:"max_processing_attempts"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 查询接口限流配置，Routes 按路由模板覆盖默认额度
type RateLimitConfig struct {
	Enabled bool                      `mapstructure:"enabled"`
	QPS     int                       `mapstructure:"qps"`
	Burst   int                       `mapstructure:"burst"`
	Routes  map[string]RouteRateLimit `mapstructure:"routes"`
}

type RouteRateLimit struct {
	QPS   int `mapstructure:"qps"`
	Burst int `mapstructure:"burst"`
}

// GeneratorConfig 订单生成器配置
type GeneratorConfig struct {
	StartDelay          time.Duration `mapstructure:"start_delay"`
	MinInterval         time.Duration `mapstructure:"min_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	ReservationCooldown time.Duration `mapstructure:"reservation_cooldown"`
	ErrorRetryDelay     time.Duration `mapstructure:"error_retry_delay"`
	MinItems            int           `mapstructure:"min_items"`
	MaxItems            int           `mapstructure:"max_items"`
	MaxQuantity         int           `mapstructure:"max_quantity"`
	Currency            string        `mapstructure:"currency"`
	InitialStock        int           `mapstructure:"initial_stock"`
	NodeID              int64         `mapstructure:"node_id"`
}

// FeesConfig 手续费配置
type FeesConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PaymentsConfig 支付查询配置
type PaymentsConfig struct {
	RecentCacheTTL time.Duration `mapstructure:"recent_cache_ttl"`
	DefaultCount   int           `mapstructure:"default_count"`
	MaxCount       int           `mapstructure:"max_count"`
}

// ToLogger 转换为 logger 包使用的配置
func (c *Config) ToLogger() logger.Config {
	return logger.Config{
		Level:      c.Logger.Level,
		Format:     c.Logger.Format,
		Output:     c.Logger.Output,
		FilePath:   c.Logger.FilePath,
		MaxSize:    c.Logger.MaxSize,
		MaxBackups: c.Logger.MaxBackups,
		MaxAge:     c.Logger.MaxAge,
		Compress:   c.Logger.Compress,
		WithCaller: c.Logger.WithCaller,
		Service:    c.ServiceName,
	}
}

// Load 从 TOML 文件加载配置，文件必须存在，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// LoadWithDefaults 从 TOML 文件加载配置，文件不存在时仅使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// 环境变量前缀 APP，使用 _ 替代 .
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// 逗号分隔的环境变量，例如 APP_KAFKA_BROKERS=a:9092,b:9092
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Kafka.Consumer.Topics = splitList(cfg.Kafka.Consumer.Topics)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证通用配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topics.OrderEvents == "" {
		return errors.New("kafka.topics.order_events is required")
	}
	switch strings.ToUpper(c.Kafka.Security.Protocol) {
	case "", "PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL":
	default:
		return fmt.Errorf("unsupported kafka.security.protocol: %s", c.Kafka.Security.Protocol)
	}
	return nil
}

// ValidateProducer 验证生产端所需配置
func (c *Config) ValidateProducer() error {
	p := c.Kafka.Producer
	switch strings.ToLower(p.Acks) {
	case "all", "leader", "none", "-1", "1", "0":
	default:
		return fmt.Errorf("invalid kafka.producer.acks: %s", p.Acks)
	}
	if p.Retries < 0 {
		return fmt.Errorf("invalid kafka.producer.retries: %d", p.Retries)
	}
	if p.FlushTimeout <= 0 {
		return errors.New("kafka.producer.flush_timeout must be positive")
	}
	g := c.Generator
	if g.MinInterval <= 0 || g.MaxInterval < g.MinInterval {
		return fmt.Errorf("invalid generator interval [%s, %s]", g.MinInterval, g.MaxInterval)
	}
	if g.MinItems < 1 || g.MaxItems < g.MinItems || g.MaxQuantity < 1 {
		return errors.New("invalid generator item bounds")
	}
	return nil
}

// ValidateConsumer 验证消费端所需配置
func (c *Config) ValidateConsumer() error {
	k := c.Kafka.Consumer
	if k.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}
	switch strings.ToLower(k.AutoOffsetReset) {
	case "earliest", "latest":
	default:
		return fmt.Errorf("invalid kafka.consumer.auto_offset_reset: %s", k.AutoOffsetReset)
	}
	if k.PollTimeout <= 0 {
		return errors.New("kafka.consumer.poll_timeout must be positive")
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.QPS <= 0 {
			return errors.New("rate_limit.qps must be positive")
		}
		for route, rl := range c.RateLimit.Routes {
			if rl.QPS <= 0 {
				return fmt.Errorf("rate_limit.routes %s: qps must be positive", route)
			}
		}
	}
	return nil
}

// ConsumerTopics 返回消费主题，未配置时回落到订单事件主题
func (c *Config) ConsumerTopics() []string {
	if len(c.Kafka.Consumer.Topics) > 0 {
		return c.Kafka.Consumer.Topics
	}
	return []string{c.Kafka.Topics.OrderEvents}
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "order-pipeline")
	v.SetDefault("version", "dev")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", "1s")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.key_prefix", "")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "order-pipeline")
	v.SetDefault("kafka.topics.order_events", "order-events")
	v.SetDefault("kafka.security.protocol", "PLAINTEXT")
	v.SetDefault("kafka.security.sasl_mechanism", "PLAIN")
	v.SetDefault("kafka.security.username", "")
	v.SetDefault("kafka.security.password", "")
	v.SetDefault("kafka.security.ca_location", "")
	v.SetDefault("kafka.security.insecure_skip_verify", false)

	v.SetDefault("kafka.producer.acks", "all")
	v.SetDefault("kafka.producer.retries", 3)
	v.SetDefault("kafka.producer.max_in_flight", 1)
	v.SetDefault("kafka.producer.enable_idempotence", true)
	v.SetDefault("kafka.producer.compression", "snappy")
	v.SetDefault("kafka.producer.linger", "5ms")
	v.SetDefault("kafka.producer.batch_size", 16384)
	v.SetDefault("kafka.producer.write_timeout", "10s")
	v.SetDefault("kafka.producer.flush_timeout", "10s")
	v.SetDefault("kafka.producer.allow_auto_topic_creation", true)

	v.SetDefault("kafka.consumer.group_id", "order-consumer-group")
	v.SetDefault("kafka.consumer.topics", []string{})
	v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	v.SetDefault("kafka.consumer.enable_auto_commit", true)
	v.SetDefault("kafka.consumer.auto_commit_interval", "5s")
	v.SetDefault("kafka.consumer.session_timeout", "6s")
	v.SetDefault("kafka.consumer.poll_timeout", "1s")
	v.SetDefault("kafka.consumer.retry_backoff", "5s")
	v.SetDefault("kafka.consumer.max_processing_attempts", 3)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("generator.start_delay", "5s")
	v.SetDefault("generator.min_interval", "5s")
	v.SetDefault("generator.max_interval", "10s")
	v.SetDefault("generator.reservation_cooldown", "5s")
	v.SetDefault("generator.error_retry_delay", "10s")
	v.SetDefault("generator.min_items", 1)
	v.SetDefault("generator.max_items", 3)
	v.SetDefault("generator.max_quantity", 2)
	v.SetDefault("generator.currency", "SEK")
	v.SetDefault("generator.initial_stock", 6)
	v.SetDefault("generator.node_id", 1)

	v.SetDefault("fees.cache_ttl", "10m")

	v.SetDefault("payments.recent_cache_ttl", "2m")
	v.SetDefault("payments.default_count", 7)
	v.SetDefault("payments.max_count", 100)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
