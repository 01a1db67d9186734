package mq

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"GeoCheckin/pkg/logger"
	mqotel "GeoCheckin/pkg/mq"
)

// ErrDiscard 处理函数返回该错误（或包装它）时消息不再重新入队
var ErrDiscard = stderrors.New("discard message")

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Handler       MessageHandler
	Queue         string
	ConsumerTag   string
	PrefetchCount int
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", opts.Queue)
			}

			msgCtx, span := mqotel.StartProcessSpan(ctx, opts.Queue, msg)
			err := opts.Handler(msgCtx, msg.Body)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				requeue := !stderrors.Is(err, ErrDiscard)
				logger.Logger.Error("Failed to process message",
					zap.String("queue", opts.Queue),
					zap.String("message_id", msg.MessageId),
					zap.Bool("requeue", requeue),
					zap.Error(err),
				)
				_ = msg.Nack(false, requeue)
			} else {
				_ = msg.Ack(false)
			}
			span.End()
		}
	}
}
