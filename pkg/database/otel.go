package database

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// PluginConfig 插件配置
type PluginConfig struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	ServiceName    string
	DBSystem       attribute.KeyValue
	MaxSQLLength   int
}

// DefaultPluginConfig 默认使用全局 Provider
func DefaultPluginConfig(serviceName string) PluginConfig {
	return PluginConfig{
		ServiceName:  serviceName,
		DBSystem:     semconv.DBSystemPostgreSQL,
		MaxSQLLength: 500,
	}
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer        trace.Tracer
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
	config        PluginConfig
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(config PluginConfig) (*OTELPlugin, error) {
	if config.ServiceName == "" {
		config.ServiceName = "geocheckin"
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	if config.MeterProvider == nil {
		config.MeterProvider = otel.GetMeterProvider()
	}
	if config.DBSystem.Key == "" {
		config.DBSystem = semconv.DBSystemPostgreSQL
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	meter := config.MeterProvider.Meter(config.ServiceName + ".gorm")
	queriesTotal, err := meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}
	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	return &OTELPlugin{
		tracer:        config.TracerProvider.Tracer(config.ServiceName + ".gorm"),
		queriesTotal:  queriesTotal,
		queryDuration: queryDuration,
		config:        config,
	}, nil
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	errs := []error{
		cb.Query().Before("gorm:query").Register("otel:before_query", p.before("db.select")),
		cb.Query().After("gorm:query").Register("otel:after_query", p.after("db.select")),
		cb.Create().Before("gorm:create").Register("otel:before_create", p.before("db.insert")),
		cb.Create().After("gorm:create").Register("otel:after_create", p.after("db.insert")),
		cb.Update().Before("gorm:update").Register("otel:before_update", p.before("db.update")),
		cb.Update().After("gorm:update").Register("otel:after_update", p.after("db.update")),
		cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("db.delete")),
		cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after("db.delete")),
		cb.Row().Before("gorm:row").Register("otel:before_row", p.before("db.row")),
		cb.Row().After("gorm:row").Register("otel:after_row", p.after("db.row")),
		cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("db.raw")),
		cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after("db.raw")),
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(p.config.DBSystem),
		)
		db.InstanceSet(startKey, time.Now())
		db.InstanceSet(spanKey, span)
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		var duration float64
		if started, ok := db.InstanceGet(startKey); ok {
			if t, ok := started.(time.Time); ok {
				duration = time.Since(t).Seconds()
			}
		}

		if table := db.Statement.Table; table != "" {
			span.SetAttributes(attribute.String("db.sql.table", table))
		}
		// 只记录带占位符的 SQL，不记录参数值
		sql := db.Statement.SQL.String()
		if len(sql) > p.config.MaxSQLLength {
			sql = sql[:p.config.MaxSQLLength] + "..."
		}
		span.SetAttributes(
			semconv.DBStatement(sql),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		status := "success"
		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			status = "error"
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}

		labels := metric.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.status", status),
		)
		p.queriesTotal.Add(db.Statement.Context, 1, labels)
		p.queryDuration.Record(db.Statement.Context, duration, labels)
	}
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	plugin, err := NewOTELPlugin(config)
	if err != nil {
		return err
	}
	return db.Use(plugin)
}
