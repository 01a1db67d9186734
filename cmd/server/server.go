package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"GeoCheckin/config"
	"GeoCheckin/internal/handler"
	"GeoCheckin/internal/middleware"
	"GeoCheckin/internal/queue"
	"GeoCheckin/internal/router"
	"GeoCheckin/internal/schedule"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/logger"
	pkgotel "GeoCheckin/pkg/otel"
	"GeoCheckin/pkg/snowflake"
	"GeoCheckin/storage"
	"GeoCheckin/storage/database"
	"GeoCheckin/storage/mq"
	"GeoCheckin/storage/redis"
)

func main() {
	// 日志部分
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
		shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.FromAppConfig(&config.Cfg, "server"))
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without export", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
				}
			}()
		}
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 发布器需在服务单例首次使用前注入
	service.SetEventPublisher(queue.NewProducer(nil, logger.Named("producer")))

	httpMetrics, err := middleware.NewHTTPMetrics(otel.Meter("geocheckin-http"))
	if err != nil {
		logger.Logger.Warn("Failed to register HTTP metrics", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	tracerOpt, tracingMiddleware := middleware.NewServerTracerConfig()
	h := server.Default(server.WithHostPorts(addr), tracerOpt)

	hdl := handler.New(service.CheckIn(), service.Location(), schedule.GetScheduler(), healthChecks())
	router.Register(h.Engine, hdl,
		tracingMiddleware,
		middleware.RecoverMiddleware(middleware.RecoverConfig{
			Logger:       logger.Named("http"),
			IsProduction: config.Cfg.IsProduction(),
			MaxBodyLog:   1024,
		}),
		middleware.MetricsMiddleware(httpMetrics),
	)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}

func healthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := database.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if client := redis.Client(); client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	checks["rabbitmq"] = func(context.Context) error {
		conn := mq.Connection()
		if conn == nil || conn.IsClosed() {
			return fmt.Errorf("connection closed")
		}
		return nil
	}
	return checks
}
