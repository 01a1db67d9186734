package schedule

import (
	"sync"

	"GeoCheckin/config"
	"GeoCheckin/internal/cache"
	"GeoCheckin/internal/repository"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/logger"
	"GeoCheckin/pkg/metrics"
	"GeoCheckin/storage/database"
	"GeoCheckin/storage/redis"
)

var (
	schedulerOnce sync.Once
	schedulerInst *AutoCheckinScheduler
)

// GetScheduler 自动打卡调度器单例，依赖存储层已初始化
func GetScheduler() *AutoCheckinScheduler {
	schedulerOnce.Do(func() {
		cfg := config.Cfg
		db := database.DB()

		deps := Deps{
			Schedules:  repository.NewScheduleRepository(db),
			Locations:  repository.NewLocationRepository(db),
			Ledger:     service.DefaultLedger(),
			Associator: service.DefaultAssociator(),
			Publisher:  service.DefaultEventPublisher(),
			Metrics:    metrics.Default(),
			Logger:     logger.Named("scheduler"),
		}
		if client := redis.Client(); client != nil {
			deps.Locker = cache.NewLocker(client, cfg.RedisPrefix)
		}

		schedulerInst = NewAutoCheckinScheduler(deps, Config{
			Interval:      cfg.CheckinTickInterval,
			Freshness:     cfg.CheckinFreshnessWindow,
			DefaultRadius: cfg.CheckinDefaultRadius,
			DBTimeout:     cfg.CheckinDBTimeout,
			Concurrency:   cfg.CheckinTickConcurrency,
			LockTTL:       cfg.CheckinTickLockTTL,
		})
	})
	return schedulerInst
}
