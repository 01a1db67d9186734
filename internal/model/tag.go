package model

// TagStatus 标签状态
type TagStatus string

const (
	TagStatusActive   TagStatus = "active"
	TagStatusInactive TagStatus = "inactive"
	TagStatusBlocked  TagStatus = "blocked"
)

// Tag 物理位置标签（NFC/二维码），打卡的目标点
type Tag struct {
	BaseModel
	UID            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"uid"`
	Name           *string   `gorm:"type:varchar(128)" json:"name,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	RadiusMeters   float64   `gorm:"not null;default:100" json:"radius_meters"`
	CheckinEnabled bool      `gorm:"not null;default:false" json:"checkin_enabled"`
	Status         TagStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	RedirectURL    *string   `gorm:"type:varchar(512)" json:"redirect_url,omitempty"`
}

func (Tag) TableName() string {
	return "tags"
}

// HasGeolocation 经纬度均已配置
func (t *Tag) HasGeolocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// AcceptsCheckin 标签启用打卡且处于 active 状态
func (t *Tag) AcceptsCheckin() bool {
	return t.CheckinEnabled && t.Status == TagStatusActive
}

// EffectiveRadius 未配置半径时回退到默认值
func (t *Tag) EffectiveRadius(defaultRadius float64) float64 {
	if t.RadiusMeters > 0 {
		return t.RadiusMeters
	}
	return defaultRadius
}

func (t *Tag) Redirect() string {
	if t.RedirectURL == nil {
		return ""
	}
	return *t.RedirectURL
}
