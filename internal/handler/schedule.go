package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"GeoCheckin/internal/model/dto"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/response"
)

// RunSchedule 立即执行一次排班的自动打卡
// POST /v1/admin/schedules/:schedule_id/run
func (h *Handler) RunSchedule(ctx context.Context, c *app.RequestContext) {
	scheduleID, err := strconv.ParseInt(c.Param("schedule_id"), 10, 64)
	if err != nil || scheduleID <= 0 {
		response.Error(ctx, c, fmt.Errorf("invalid schedule_id %q: %w", c.Param("schedule_id"), errors.InvalidRequest))
		return
	}

	stats, err := h.runner.RunSchedule(ctx, scheduleID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.ScheduleRunResponse{
		BatchID:           stats.BatchID,
		ScheduleID:        stats.ScheduleID,
		UsersProcessed:    stats.UsersProcessed,
		UsersWithinRadius: stats.UsersWithinRadius,
		UsersSkipped:      stats.UsersSkipped,
		Errors:            stats.Errors,
	})
}
