package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"GeoCheckin/config"
	"GeoCheckin/internal/cache"
	"GeoCheckin/internal/queue"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/logger"
	pkgotel "GeoCheckin/pkg/otel"
	"GeoCheckin/pkg/snowflake"
	"GeoCheckin/storage"
	"GeoCheckin/storage/redis"
)

const consumerRetryDelay = 5 * time.Second

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.FromAppConfig(&config.Cfg, "worker"))
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without export", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	var dedup queue.MessageDeduper
	if client := redis.Client(); client != nil {
		dedup = cache.NewMessageMarks(client, config.Cfg.RedisPrefix)
	}
	handler := queue.NewLocationPingHandler(service.Location(), dedup, logger.Named("worker"))

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// channel 被关闭时重新订阅，直到收到退出信号
	for {
		err := queue.StartLocationPingConsumer(ctx, handler)
		if ctx.Err() != nil {
			break
		}
		logger.Logger.Error("Location ping consumer stopped, retrying",
			zap.Error(err),
			zap.Duration("delay", consumerRetryDelay),
		)
		select {
		case <-ctx.Done():
		case <-time.After(consumerRetryDelay):
		}
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
