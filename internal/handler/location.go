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

// RecordLocation 位置上报
// POST /v1/locations
func (h *Handler) RecordLocation(ctx context.Context, c *app.RequestContext) {
	var req dto.LocationPingRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		response.Error(ctx, c, fmt.Errorf("latitude and longitude are required: %w", errors.InvalidRequest))
		return
	}

	in := service.LocationPingInput{
		UserID:    req.UserID,
		TagID:     req.TagID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		Source:    "http",
	}
	if req.RecordedAt != nil {
		in.RecordedAt = *req.RecordedAt
	}

	ping, err := h.locations.RecordPing(ctx, in)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, dto.LocationPingResponse{
		PingID:     ping.ID,
		RecordedAt: ping.RecordedAt,
	})
}
