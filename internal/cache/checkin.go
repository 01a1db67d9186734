package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"GeoCheckin/storage/redis"
)

const (
	// 手动打卡占位：同一用户同一标签同一天只允许一个请求进入写库流程
	manualClaimPrefix = "checkin:manual:claim"

	// 只覆盖查重到写库之间的窗口，写库后由数据库查重拦截
	manualClaimTTL = 30 * time.Second
)

// CheckinClaims 基于 SETNX 的手动打卡占位
type CheckinClaims struct {
	client goredis.Cmdable
	prefix string
}

func NewCheckinClaims(client goredis.Cmdable, prefix string) *CheckinClaims {
	return &CheckinClaims{client: client, prefix: prefix}
}

func (c *CheckinClaims) key(userID, tagID int64, day string) string {
	return redis.KeyWithPrefix(c.prefix, manualClaimPrefix, day, fmt.Sprintf("%d", tagID), fmt.Sprintf("%d", userID))
}

// TryClaim 返回 false 表示已有请求占位
func (c *CheckinClaims) TryClaim(ctx context.Context, userID, tagID int64, day string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(userID, tagID, day), 1, manualClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim manual checkin: %w", err)
	}
	return ok, nil
}

// Release 写库失败或未完成打卡时释放占位
func (c *CheckinClaims) Release(ctx context.Context, userID, tagID int64, day string) error {
	if err := c.client.Del(ctx, c.key(userID, tagID, day)).Err(); err != nil {
		return fmt.Errorf("failed to release manual checkin claim: %w", err)
	}
	return nil
}

const (
	// 消费端幂等：同一消息只处理一次
	messageProcessedPrefix = "message:processed"
)

// MessageMarks 消息处理标记
type MessageMarks struct {
	client goredis.Cmdable
	prefix string
}

func NewMessageMarks(client goredis.Cmdable, prefix string) *MessageMarks {
	return &MessageMarks{client: client, prefix: prefix}
}

// TryMarkProcessing 返回 false 表示消息已处理或正在处理
func (m *MessageMarks) TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, redis.KeyWithPrefix(m.prefix, messageProcessedPrefix, messageID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message processing: %w", err)
	}
	return ok, nil
}

// Unmark 处理失败时清除标记，允许重新投递后再处理
func (m *MessageMarks) Unmark(ctx context.Context, messageID string) error {
	return m.client.Del(ctx, redis.KeyWithPrefix(m.prefix, messageProcessedPrefix, messageID)).Err()
}
