package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

const healthCheckTimeout = 2 * time.Second

// Healthz 依赖探活，任一失败返回 503
// GET /healthz
func (h *Handler) Healthz(ctx context.Context, c *app.RequestContext) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := utils.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, utils.H{"status": overall, "components": components})
}
