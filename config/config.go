package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"geocheckin"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"geocheckin"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本，逗号分隔的 host:port，为空时不启用读写分离
	PostgreSQLReplicas []string `env:"POSTGRESQL_REPLICAS" envSeparator:","`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"geock"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 自动打卡调度配置
	CheckinTickInterval       time.Duration `env:"CHECKIN_TICK_INTERVAL" envDefault:"10m"`
	CheckinFreshnessWindow    time.Duration `env:"CHECKIN_FRESHNESS_WINDOW" envDefault:"30m"`
	CheckinDefaultRadius      float64       `env:"CHECKIN_DEFAULT_RADIUS_METERS" envDefault:"100"`
	CheckinDefaultTimezone    string        `env:"CHECKIN_DEFAULT_TIMEZONE" envDefault:"UTC"`
	CheckinDBTimeout          time.Duration `env:"CHECKIN_DB_TIMEOUT" envDefault:"5s"`
	CheckinTickConcurrency    int           `env:"CHECKIN_TICK_CONCURRENCY" envDefault:"4"`
	CheckinTickLockTTL        time.Duration `env:"CHECKIN_TICK_LOCK_TTL" envDefault:"9m"`
	CheckinPublishEvents      bool          `env:"CHECKIN_PUBLISH_EVENTS" envDefault:"true"`
	CheckinManualClaimEnabled bool          `env:"CHECKIN_MANUAL_CLAIM_ENABLED" envDefault:"true"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	Cfg = *cfg
}

// Load 从环境变量解析配置并校验
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验打卡引擎相关配置
func (c *Config) Validate() error {
	if c.CheckinTickInterval <= 0 {
		return fmt.Errorf("CHECKIN_TICK_INTERVAL must be positive")
	}
	if c.CheckinFreshnessWindow <= 0 {
		return fmt.Errorf("CHECKIN_FRESHNESS_WINDOW must be positive")
	}
	if c.CheckinDefaultRadius <= 0 {
		return fmt.Errorf("CHECKIN_DEFAULT_RADIUS_METERS must be positive")
	}
	if c.CheckinDBTimeout <= 0 {
		return fmt.Errorf("CHECKIN_DB_TIMEOUT must be positive")
	}
	if c.CheckinTickConcurrency < 1 {
		return fmt.Errorf("CHECKIN_TICK_CONCURRENCY must be at least 1")
	}
	if _, err := time.LoadLocation(c.CheckinDefaultTimezone); err != nil {
		return fmt.Errorf("CHECKIN_DEFAULT_TIMEZONE is invalid: %w", err)
	}

	if c.CheckinTickLockTTL >= c.CheckinTickInterval {
		log.Printf("WARN: CHECKIN_TICK_LOCK_TTL (%s) >= CHECKIN_TICK_INTERVAL (%s), a crashed scheduler may block the next tick",
			c.CheckinTickLockTTL, c.CheckinTickInterval)
	}
	return nil
}

func (c *Config) GetDSN() string {
	return c.dsnForHost(c.PostgreSQLHost, c.PostgreSQLPort)
}

// GetReplicaDSNs 返回只读副本的 DSN 列表
func (c *Config) GetReplicaDSNs() []string {
	dsns := make([]string, 0, len(c.PostgreSQLReplicas))
	for _, replica := range c.PostgreSQLReplicas {
		replica = strings.TrimSpace(replica)
		if replica == "" {
			continue
		}
		host, port := replica, c.PostgreSQLPort
		if idx := strings.LastIndex(replica, ":"); idx > 0 {
			host, port = replica[:idx], replica[idx+1:]
		}
		dsns = append(dsns, c.dsnForHost(host, port))
	}
	return dsns
}

func (c *Config) dsnForHost(host, port string) string {
	return "host=" + host +
		" port=" + port +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema +
		" TimeZone=UTC"
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// DefaultLocation 返回默认时区，用于无排班上下文的手动打卡日界
func (c *Config) DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(c.CheckinDefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
