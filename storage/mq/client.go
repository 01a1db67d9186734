package mq

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"GeoCheckin/config"
	"GeoCheckin/pkg/logger"
)

const (
	// CheckinEventsExchange 打卡事件 topic exchange
	CheckinEventsExchange = "checkin.events"
	// CheckinCreatedRoutingKey 打卡创建事件路由键
	CheckinCreatedRoutingKey = "checkin.created"
	// LocationPingsQueue 设备网关上报位置的队列
	LocationPingsQueue = "location.pings"
)

var (
	conn   *amqp.Connection
	connMu sync.RWMutex
)

// Init 建立连接并声明拓扑
func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch); err != nil {
		_ = c.Close()
		return err
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	logger.Logger.Info("RabbitMQ initialized successfully",
		zap.String("exchange", CheckinEventsExchange),
		zap.String("queue", LocationPingsQueue),
	)
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(CheckinEventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", CheckinEventsExchange, err)
	}
	if _, err := ch.QueueDeclare(LocationPingsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", LocationPingsQueue, err)
	}
	return nil
}

// Connection 返回当前连接，未初始化时为 nil
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close() error {
	resetPublisherChannel()

	connMu.Lock()
	defer connMu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil
	}
	err := conn.Close()
	conn = nil
	return err
}
