package handler

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"

	"GeoCheckin/internal/model/dto"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/response"
)

// ManualCheckIn 手动打卡，范围外同样返回 200 与距离
// POST /v1/check-ins
func (h *Handler) ManualCheckIn(ctx context.Context, c *app.RequestContext) {
	var req dto.ManualCheckinRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		response.Error(ctx, c, fmt.Errorf("latitude and longitude are required: %w", errors.InvalidRequest))
		return
	}

	result, err := h.checkins.CheckIn(ctx, service.ManualCheckinRequest{
		UserID:    req.UserID,
		TagID:     req.TagID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.ManualCheckinResponse{
		CheckinID:      result.Checkin.ID,
		ScheduleID:     result.Checkin.ScheduleID,
		Status:         string(result.Checkin.Status),
		CheckedInAt:    result.Checkin.CreatedAt,
		RedirectURL:    result.RedirectURL,
		DistanceMeters: result.DistanceMeters,
		RadiusMeters:   result.RadiusMeters,
		IsWithinRadius: result.IsWithinRadius,
	})
}
