// Package testutil 为仓储、服务与调度测试提供内存 SQLite 数据库。
package testutil

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"GeoCheckin/internal/model"
)

var schema = []string{
	`CREATE TABLE tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		name TEXT,
		latitude REAL,
		longitude REAL,
		radius_meters REAL NOT NULL DEFAULT 100,
		checkin_enabled BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		redirect_url TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`,
	`CREATE TABLE schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		days_of_week TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		is_active BOOLEAN NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`,
	`CREATE TABLE schedule_tags (
		schedule_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (schedule_id, tag_id)
	);`,
	`CREATE TABLE location_pings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		tag_id INTEGER,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		accuracy REAL,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME
	);`,
	`CREATE TABLE checkins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		schedule_id INTEGER,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		distance_meters REAL NOT NULL,
		is_within_radius BOOLEAN NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		checkin_date TEXT NOT NULL,
		auto_dedup_day TEXT,
		created_at DATETIME
	);`,
	`CREATE UNIQUE INDEX idx_checkins_auto_dedup ON checkins (user_id, schedule_id, auto_dedup_day);`,
	`CREATE TABLE user_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	);`,
	`CREATE TABLE group_schedules (
		group_id INTEGER NOT NULL,
		schedule_id INTEGER NOT NULL,
		PRIMARY KEY (group_id, schedule_id)
	);`,
	`CREATE TABLE group_memberships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		added_by TEXT NOT NULL,
		source_schedule_id INTEGER,
		created_at DATETIME
	);`,
	`CREATE UNIQUE INDEX idx_group_memberships_group_user ON group_memberships (group_id, user_id);`,
}

// OpenSQLite 打开内存库并建表。单连接，避免 :memory: 在连接间不共享
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Fixture 测试数据构造
type Fixture struct {
	t  testing.TB
	DB *gorm.DB
}

func NewFixture(t testing.TB, db *gorm.DB) *Fixture {
	return &Fixture{t: t, DB: db}
}

// Tag 创建启用打卡的标签，lat/lon 为 nil 时不配置坐标
func (f *Fixture) Tag(uid string, lat, lon *float64, radius float64) *model.Tag {
	f.t.Helper()
	tag := &model.Tag{
		UID:            uid,
		Latitude:       lat,
		Longitude:      lon,
		RadiusMeters:   radius,
		CheckinEnabled: true,
		Status:         model.TagStatusActive,
	}
	if err := f.DB.Create(tag).Error; err != nil {
		f.t.Fatalf("create tag: %v", err)
	}
	return tag
}

// Schedule 创建排班并关联标签
func (f *Fixture) Schedule(schedule *model.Schedule, tags ...*model.Tag) *model.Schedule {
	f.t.Helper()
	if schedule.Name == "" {
		schedule.Name = "schedule"
	}
	if err := f.DB.Omit("Tags").Create(schedule).Error; err != nil {
		f.t.Fatalf("create schedule: %v", err)
	}
	for _, tag := range tags {
		link := &model.ScheduleTag{ScheduleID: schedule.ID, TagID: tag.ID}
		if err := f.DB.Create(link).Error; err != nil {
			f.t.Fatalf("link schedule tag: %v", err)
		}
	}
	return schedule
}

// Group 创建分组并关联到排班
func (f *Fixture) Group(name string, scheduleIDs ...int64) *model.Group {
	f.t.Helper()
	group := &model.Group{Name: name}
	if err := f.DB.Create(group).Error; err != nil {
		f.t.Fatalf("create group: %v", err)
	}
	for _, id := range scheduleIDs {
		if err := f.DB.Create(&model.GroupSchedule{GroupID: group.ID, ScheduleID: id}).Error; err != nil {
			f.t.Fatalf("link group schedule: %v", err)
		}
	}
	return group
}

// Ping 写入一条位置记录
func (f *Fixture) Ping(userID int64, tagID *int64, lat, lon float64, at time.Time) *model.LocationPing {
	f.t.Helper()
	ping := &model.LocationPing{
		UserID:     userID,
		TagID:      tagID,
		Latitude:   lat,
		Longitude:  lon,
		RecordedAt: at.UTC(),
	}
	if err := f.DB.Create(ping).Error; err != nil {
		f.t.Fatalf("create ping: %v", err)
	}
	return ping
}

func Float(v float64) *float64 { return &v }

func Int64(v int64) *int64 { return &v }
