package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/service"
	"GeoCheckin/storage/mq"
)

const processedTTL = 24 * time.Hour

// PingRecorder 位置写入
type PingRecorder interface {
	RecordPing(ctx context.Context, in service.LocationPingInput) (*model.LocationPing, error)
}

// MessageDeduper 消费端幂等标记，可为空
type MessageDeduper interface {
	TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, messageID string) error
}

// NewLocationPingHandler 处理 location.pings 队列中的位置消息。
// 格式或坐标非法的消息直接丢弃，写库失败则重新入队
func NewLocationPingHandler(recorder PingRecorder, dedup MessageDeduper, logger *zap.Logger) mq.MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, body []byte) error {
		var msg model.LocationPingMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal location ping: %v: %w", err, mq.ErrDiscard)
		}
		if msg.MessageID == "" {
			msg.MessageID = uuid.NewString()
		}

		var recordedAt time.Time
		if msg.RecordedAt != "" {
			t, err := time.Parse(time.RFC3339, msg.RecordedAt)
			if err != nil {
				return fmt.Errorf("invalid recorded_at %q: %w", msg.RecordedAt, mq.ErrDiscard)
			}
			recordedAt = t
		}

		if dedup != nil {
			ok, err := dedup.TryMarkProcessing(ctx, msg.MessageID, processedTTL)
			if err != nil {
				logger.Warn("Failed to check message processed status",
					zap.String("message_id", msg.MessageID),
					zap.Error(err),
				)
			} else if !ok {
				logger.Info("Message already processed, skipping", zap.String("message_id", msg.MessageID))
				return nil
			}
		}

		_, err := recorder.RecordPing(ctx, service.LocationPingInput{
			UserID:     msg.UserID,
			TagID:      msg.TagID,
			Latitude:   msg.Latitude,
			Longitude:  msg.Longitude,
			Accuracy:   msg.Accuracy,
			RecordedAt: recordedAt,
			Source:     "mq",
		})
		if err != nil {
			if service.IsClientError(err) {
				return fmt.Errorf("rejected location ping %s: %v: %w", msg.MessageID, err, mq.ErrDiscard)
			}
			if dedup != nil {
				_ = dedup.Unmark(ctx, msg.MessageID)
			}
			return fmt.Errorf("failed to record location ping %s: %w", msg.MessageID, err)
		}
		return nil
	}
}

// StartLocationPingConsumer 阻塞消费 location.pings
func StartLocationPingConsumer(ctx context.Context, handler mq.MessageHandler) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.LocationPingsQueue,
		ConsumerTag:   "geocheckin-worker-pings",
		PrefetchCount: 50,
		Handler:       handler,
	})
}
