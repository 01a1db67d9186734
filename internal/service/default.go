package service

import (
	"sync"

	"GeoCheckin/config"
	"GeoCheckin/internal/cache"
	"GeoCheckin/internal/repository"
	"GeoCheckin/pkg/logger"
	"GeoCheckin/pkg/metrics"
	"GeoCheckin/storage/database"
	"GeoCheckin/storage/redis"
)

var (
	ledgerOnce sync.Once
	ledgerInst *Ledger

	associatorOnce sync.Once
	associatorInst *GroupAssociator

	checkinOnce sync.Once
	checkinInst *ManualCheckinService

	locationOnce sync.Once
	locationInst *LocationService

	publisherMu sync.RWMutex
	publisher   EventPublisher
)

// SetEventPublisher 由进程入口注入事件发布者，需在首次获取服务前调用
func SetEventPublisher(p EventPublisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	publisher = p
}

// DefaultEventPublisher 未注入或关闭事件发布时返回 nil
func DefaultEventPublisher() EventPublisher {
	if !config.Cfg.CheckinPublishEvents {
		return nil
	}
	publisherMu.RLock()
	defer publisherMu.RUnlock()
	return publisher
}

func DefaultLedger() *Ledger {
	ledgerOnce.Do(func() {
		ledgerInst = NewLedger(repository.NewCheckinRepository(database.DB()))
	})
	return ledgerInst
}

func DefaultAssociator() *GroupAssociator {
	associatorOnce.Do(func() {
		associatorInst = NewGroupAssociator(
			repository.NewGroupRepository(database.DB()),
			logger.Named("group"),
			metrics.Default(),
		)
	})
	return associatorInst
}

// CheckIn 手动打卡服务单例
func CheckIn() *ManualCheckinService {
	checkinOnce.Do(func() {
		db := database.DB()

		var claims ClaimStore
		if config.Cfg.CheckinManualClaimEnabled {
			if client := redis.Client(); client != nil {
				claims = cache.NewCheckinClaims(client, config.Cfg.RedisPrefix)
			}
		}

		checkinInst = NewManualCheckinService(ManualCheckinDeps{
			Tags:       repository.NewTagRepository(db),
			Schedules:  repository.NewScheduleRepository(db),
			Checkins:   repository.NewCheckinRepository(db),
			Ledger:     DefaultLedger(),
			Associator: DefaultAssociator(),
			Claims:     claims,
			Publisher:  DefaultEventPublisher(),
			Metrics:    metrics.Default(),
			Logger:     logger.Named("checkin"),
		}, ManualCheckinConfig{
			Location:      config.Cfg.DefaultLocation(),
			DefaultRadius: config.Cfg.CheckinDefaultRadius,
			DBTimeout:     config.Cfg.CheckinDBTimeout,
		})
	})
	return checkinInst
}

// Location 位置上报服务单例
func Location() *LocationService {
	locationOnce.Do(func() {
		locationInst = NewLocationService(
			repository.NewLocationRepository(database.DB()),
			logger.Named("location"),
			metrics.Default(),
			config.Cfg.CheckinDBTimeout,
		)
	})
	return locationInst
}
