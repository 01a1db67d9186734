package storage

import (
	"GeoCheckin/storage/database"
	"GeoCheckin/storage/mq"
	"GeoCheckin/storage/redis"
)

// Init 统一初始化存储层
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
