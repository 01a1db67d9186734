package service

import (
	"time"

	"GeoCheckin/internal/model"
)

// IsActive 判断排班在 now 时刻是否激活：转换到排班时区后，
// 星期命中且当天分钟数落在 [start, end] 内（两端包含）。
// 跨天窗口与未知时区返回 InvalidScheduleWindow，视为未激活
func IsActive(schedule *model.Schedule, now time.Time) (bool, error) {
	if schedule == nil || !schedule.IsActive {
		return false, nil
	}

	start, end, err := schedule.WindowMinutes()
	if err != nil {
		return false, err
	}
	loc, err := schedule.Location()
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	if !schedule.HasDay(local.Weekday()) {
		return false, nil
	}

	current := local.Hour()*60 + local.Minute()
	return current >= start && current <= end, nil
}

// ValidateWindow 配置时校验，与模型的 BeforeSave 钩子一致
func ValidateWindow(schedule *model.Schedule) error {
	return schedule.BeforeSave(nil)
}
