package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"GeoCheckin/internal/model"
	"GeoCheckin/pkg/logger"
)

// Migrate 建表与索引，包括自动打卡去重用的唯一索引
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.SetupJoinTable(&model.Schedule{}, "Tags", &model.ScheduleTag{}); err != nil {
		return err
	}

	err := db.AutoMigrate(
		&model.Tag{},
		&model.Schedule{},
		&model.ScheduleTag{},
		&model.LocationPing{},
		&model.Checkin{},
		&model.Group{},
		&model.GroupSchedule{},
		&model.GroupMembership{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
