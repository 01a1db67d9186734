package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"GeoCheckin/config"
	"GeoCheckin/internal/queue"
	"GeoCheckin/internal/schedule"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/logger"
	pkgotel "GeoCheckin/pkg/otel"
	"GeoCheckin/pkg/snowflake"
	"GeoCheckin/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if config.Cfg.OTelEnabled {
		shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.FromAppConfig(&config.Cfg, "scheduler"))
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
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	// 考虑与 worker 和 server 作区分
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	service.SetEventPublisher(queue.NewProducer(nil, logger.Named("producer")))

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("tick_interval", config.Cfg.CheckinTickInterval),
		zap.Duration("freshness_window", config.Cfg.CheckinFreshnessWindow),
	)

	s := schedule.GetScheduler()
	s.Start(ctx)

	<-ctx.Done()

	// 等待进行中的批次写完
	s.Stop()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
