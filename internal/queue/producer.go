package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GeoCheckin/internal/model"
	"GeoCheckin/storage/mq"
)

const eventCheckinCreated = "checkin.created"

// PublishFunc 发布 JSON 消息，默认实现为 mq.PublishJSON
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Producer 打卡事件发布
type Producer struct {
	publish PublishFunc
	logger  *zap.Logger
}

func NewProducer(publish PublishFunc, logger *zap.Logger) *Producer {
	if publish == nil {
		publish = mq.PublishJSON
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{publish: publish, logger: logger}
}

// PublishCheckinCreated 发布 checkin.created 事件，消息 ID 由打卡 ID 决定，重复发布可被消费端去重
func (p *Producer) PublishCheckinCreated(ctx context.Context, checkin *model.Checkin, batchID string) error {
	if checkin == nil {
		return nil
	}

	msg := model.CheckinCreatedEvent{
		MessageID:      fmt.Sprintf("checkin_%d", checkin.ID),
		BatchID:        batchID,
		EventType:      eventCheckinCreated,
		CheckinID:      checkin.ID,
		UserID:         checkin.UserID,
		TagID:          checkin.TagID,
		ScheduleID:     checkin.ScheduleID,
		Type:           string(checkin.Type),
		Status:         string(checkin.Status),
		DistanceMeters: checkin.DistanceMeters,
		IsWithinRadius: checkin.IsWithinRadius,
		CheckinDate:    checkin.CheckinDate,
		OccurredAt:     checkin.CreatedAt.UTC().Format(time.RFC3339),
	}

	if err := p.publish(ctx, mq.CheckinEventsExchange, mq.CheckinCreatedRoutingKey, msg.MessageID, msg); err != nil {
		return fmt.Errorf("failed to publish checkin event %s: %w", msg.MessageID, err)
	}

	p.logger.Debug("Published checkin event",
		zap.String("message_id", msg.MessageID),
		zap.String("batch_id", batchID),
		zap.Int64("user_id", checkin.UserID),
	)
	return nil
}
