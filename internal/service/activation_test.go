package service

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoCheckin/internal/model"
	"GeoCheckin/pkg/errors"
)

func TestIsActive(t *testing.T) {
	weekday := &model.Schedule{
		DaysOfWeek: pq.Int64Array{1, 2, 3, 4, 5},
		StartTime:  "09:00",
		EndTime:    "17:00",
		Timezone:   "UTC",
		IsActive:   true,
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"monday inside window", time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), true},
		{"start inclusive", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), true},
		{"end inclusive", time.Date(2024, 3, 4, 17, 0, 59, 0, time.UTC), true},
		{"after end", time.Date(2024, 3, 4, 17, 1, 0, 0, time.UTC), false},
		{"before start", time.Date(2024, 3, 4, 8, 59, 59, 0, time.UTC), false},
		{"sunday", time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsActive(weekday, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsActiveConvertsToScheduleTimezone(t *testing.T) {
	schedule := &model.Schedule{
		DaysOfWeek: pq.Int64Array{1},
		StartTime:  "09:00:00",
		EndTime:    "10:00:00",
		Timezone:   "America/New_York",
		IsActive:   true,
	}

	// 2024-03-04 14:30 UTC = 09:30 EST（周一）
	active, err := IsActive(schedule, time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, active)

	// UTC 周二 02:00 在纽约仍是周一 21:00，窗口外
	active, err = IsActive(schedule, time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, active)
}

func TestIsActiveInvalidWindow(t *testing.T) {
	overnight := &model.Schedule{
		DaysOfWeek: pq.Int64Array{1}, StartTime: "22:00", EndTime: "06:00", IsActive: true,
	}
	active, err := IsActive(overnight, time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC))
	assert.False(t, active)
	assert.True(t, stderrors.Is(err, errors.InvalidScheduleWindow))

	badZone := &model.Schedule{
		DaysOfWeek: pq.Int64Array{1}, StartTime: "09:00", EndTime: "10:00", Timezone: "Mars/Olympus", IsActive: true,
	}
	_, err = IsActive(badZone, time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC))
	assert.True(t, stderrors.Is(err, errors.InvalidScheduleWindow))
	assert.True(t, stderrors.Is(ValidateWindow(badZone), errors.InvalidScheduleWindow))
}

func TestIsActiveDisabledSchedule(t *testing.T) {
	active, err := IsActive(&model.Schedule{
		DaysOfWeek: pq.Int64Array{1}, StartTime: "00:00", EndTime: "23:59",
	}, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, active)
}
