package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GeoCheckin/config"
	"GeoCheckin/pkg/logger"
	redisotel "GeoCheckin/pkg/redis"
)

var (
	client *redis.Client
	once   sync.Once
	err    error
)

func Init() error {
	once.Do(func() {
		cfg := config.Cfg

		client = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MinIdleConns: 5,
			MaxRetries:   3,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err = client.Ping(ctx).Err(); err != nil {
			return
		}

		if hookErr := redisotel.InstrumentClient(client, cfg.ServiceName, cfg.RedisDB); hookErr != nil {
			logger.Logger.Warn("Failed to instrument Redis tracing", zap.Error(hookErr))
		}
		logger.Logger.Info("Redis initialized successfully", zap.String("addr", cfg.RedisAddr))
	})

	return err
}

// Client 返回全局客户端，未初始化时返回 nil，调用方需降级处理
func Client() *redis.Client {
	return client
}

func Close(ctx context.Context) error {
	if client == nil {
		return nil
	}

	return client.Close()
}

// Key 以配置的前缀拼接键名
func Key(parts ...string) string {
	return KeyWithPrefix(config.Cfg.RedisPrefix, parts...)
}

func KeyWithPrefix(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = "geock"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
