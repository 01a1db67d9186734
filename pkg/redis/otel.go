package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook，同时记录命令数与耗时
type TracingHook struct {
	tracer          trace.Tracer
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	attrs           []attribute.KeyValue
}

// NewTracingHook 创建追踪 Hook，未配置 MeterProvider 时指标为 noop
func NewTracingHook(serviceName string, db int) (*TracingHook, error) {
	meter := otel.Meter(serviceName + ".redis")

	commandsTotal, err := meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	return &TracingHook{
		tracer:          otel.Tracer(serviceName + ".redis"),
		commandsTotal:   commandsTotal,
		commandDuration: commandDuration,
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}, nil
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.FullName(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := commandStatus(err)
		if status == "error" {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}

		labels := metric.WithAttributes(
			attribute.String("redis.command", cmd.Name()),
			attribute.String("redis.status", status),
		)
		th.commandsTotal.Add(ctx, 1, labels)
		th.commandDuration.Record(ctx, time.Since(start).Seconds(), labels)

		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(attribute.Int("redis.pipeline.count", len(cmds)))
		err := next(ctx, cmds)
		if err != nil && err != redis.Nil {
			span.SetStatus(codes.Error, err.Error())
		}

		th.commandsTotal.Add(ctx, int64(len(cmds)), metric.WithAttributes(
			attribute.String("redis.command", "pipeline"),
			attribute.String("redis.status", commandStatus(err)),
		))
		return err
	}
}

func commandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case err == redis.Nil:
		return "not_found"
	default:
		return "error"
	}
}

// extractKeys 只记录键名，不记录值
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	keys := make([]string, 0, 1)
	if key, ok := args[1].(string); ok {
		if len(key) > 100 {
			key = key[:100] + "..."
		}
		keys = append(keys, key)
	}
	return keys
}

// InstrumentClient 为 Redis 客户端添加 OpenTelemetry 支持
func InstrumentClient(client *redis.Client, serviceName string, db int) error {
	hook, err := NewTracingHook(serviceName, db)
	if err != nil {
		return err
	}
	client.AddHook(hook)
	return nil
}
