package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"GeoCheckin/internal/handler"
)

// Register 注册全部路由，middlewares 按顺序挂在全局
func Register(r *route.Engine, h *handler.Handler, middlewares ...app.HandlerFunc) {
	r.Use(middlewares...)

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")

	// 手动打卡
	v1.POST("/check-ins", h.ManualCheckIn)

	// 位置上报
	v1.POST("/locations", h.RecordLocation)

	// 运维接口，立即执行某个排班
	admin := v1.Group("/admin")
	{
		admin.POST("/schedules/:schedule_id/run", h.RunSchedule)
	}
}
