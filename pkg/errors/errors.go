package errors

import (
	stderrors "errors"
	"time"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest         = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	PersistenceUnavailable = Definition{Code: "PERSISTENCE_UNAVAILABLE", Message: "Persistence layer unavailable"}
)

// 标签与地理位置错误。
var (
	TagNotFound              = Definition{Code: "TAG_NOT_FOUND", Message: "Tag not found"}
	GeolocationNotConfigured = Definition{Code: "GEOLOCATION_NOT_CONFIGURED", Message: "Tag geolocation not configured"}
	InvalidCoordinate        = Definition{Code: "INVALID_COORDINATE", Message: "Invalid coordinate"}
)

// 排班错误。
var (
	ScheduleNotFound      = Definition{Code: "SCHEDULE_NOT_FOUND", Message: "Schedule not found"}
	ScheduleNotActive     = Definition{Code: "SCHEDULE_NOT_ACTIVE", Message: "Schedule not active"}
	InvalidScheduleWindow = Definition{Code: "INVALID_SCHEDULE_WINDOW", Message: "Invalid schedule window"}
)

// 打卡错误。
var (
	AlreadyCheckedInToday = Definition{Code: "ALREADY_CHECKED_IN_TODAY", Message: "Already checked in today"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:           InvalidRequest,
	PersistenceUnavailable.Code:   PersistenceUnavailable,
	TagNotFound.Code:              TagNotFound,
	GeolocationNotConfigured.Code: GeolocationNotConfigured,
	InvalidCoordinate.Code:        InvalidCoordinate,
	ScheduleNotFound.Code:         ScheduleNotFound,
	ScheduleNotActive.Code:        ScheduleNotActive,
	InvalidScheduleWindow.Code:    InvalidScheduleWindow,
	AlreadyCheckedInToday.Code:    AlreadyCheckedInToday,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// As 从错误链中取出 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// AlreadyCheckedInError 当天已完成手动打卡，携带已有记录与跳转地址
type AlreadyCheckedInError struct {
	CheckinID   int64
	CheckedInAt time.Time
	RedirectURL string
}

func (e *AlreadyCheckedInError) Error() string {
	return AlreadyCheckedInToday.Message
}

func (e *AlreadyCheckedInError) Unwrap() error {
	return AlreadyCheckedInToday
}

// Details 用于错误响应的 details 字段
func (e *AlreadyCheckedInError) Details() map[string]interface{} {
	details := map[string]interface{}{
		"checkin_id":    e.CheckinID,
		"checked_in_at": e.CheckedInAt.UTC().Format(time.RFC3339),
	}
	if e.RedirectURL != "" {
		details["redirect_url"] = e.RedirectURL
	}
	return details
}
