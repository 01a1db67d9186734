package model

import "time"

// MembershipSource 成员加入方式
type MembershipSource string

const (
	MembershipAddedAuto   MembershipSource = "auto"
	MembershipAddedManual MembershipSource = "manual"
)

type Group struct {
	BaseModel
	Name string `gorm:"type:varchar(128);not null" json:"name"`
}

func (Group) TableName() string {
	return "user_groups"
}

// GroupSchedule 排班关联的分组，成功打卡后用户会被加入这些分组
type GroupSchedule struct {
	GroupID    int64 `gorm:"primaryKey"`
	ScheduleID int64 `gorm:"primaryKey;index"`
}

func (GroupSchedule) TableName() string {
	return "group_schedules"
}

// GroupMembership (group_id, user_id) 唯一
type GroupMembership struct {
	ID               int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID          int64            `gorm:"not null;uniqueIndex:idx_group_memberships_group_user,priority:1" json:"group_id"`
	UserID           int64            `gorm:"not null;uniqueIndex:idx_group_memberships_group_user,priority:2;index" json:"user_id"`
	AddedBy          MembershipSource `gorm:"type:varchar(16);not null" json:"added_by"`
	SourceScheduleID *int64           `json:"source_schedule_id,omitempty"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
}

func (GroupMembership) TableName() string {
	return "group_memberships"
}
