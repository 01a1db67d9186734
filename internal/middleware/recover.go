package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"GeoCheckin/pkg/errors"
	"GeoCheckin/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	Logger *zap.Logger
	// 生产环境不返回 panic 详情
	IsProduction bool
	// 记录请求体时的长度上限，0 表示不记录
	MaxBodyLog int
}

var internalError = errors.Definition{Code: "INTERNAL_ERROR", Message: "Internal server error"}

// RecoverMiddleware 捕获 handler 中的 panic，记录日志并返回 500
func RecoverMiddleware(cfg RecoverConfig) app.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	stack := callerStack(4)

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", requestID(c)),
		zap.String("stack", stack),
	}
	if body := c.Request.Body(); cfg.MaxBodyLog > 0 && len(body) > 0 && len(body) <= cfg.MaxBodyLog {
		fields = append(fields, zap.ByteString("body", body))
	}
	cfg.Logger.Error("[PANIC RECOVERED]", fields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	if cfg.IsProduction {
		response.Error(ctx, c, internalError)
	} else {
		response.ErrorWithDetails(ctx, c, internalError, map[string]interface{}{
			"panic":     fmt.Sprintf("%v", err),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	c.Abort()
}

func requestID(c *app.RequestContext) string {
	if id := c.GetHeader("X-Request-ID"); len(id) > 0 {
		return string(id)
	}
	return string(c.GetHeader("X-Trace-ID"))
}

// callerStack 当前 goroutine 的调用栈，跳过 runtime 帧
func callerStack(skip int) string {
	var b strings.Builder
	for i := skip; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/runtime/") {
			continue
		}
		name := "?"
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
		fmt.Fprintf(&b, "%s:%d %s\n", file, line, name)
	}
	return b.String()
}
