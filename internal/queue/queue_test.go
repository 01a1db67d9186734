package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"GeoCheckin/internal/cache"
	"GeoCheckin/internal/model"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/errors"
	"GeoCheckin/storage/mq"
)

func TestPublishCheckinCreated(t *testing.T) {
	var gotExchange, gotKey, gotID string
	var gotBody model.CheckinCreatedEvent
	publish := func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
		gotExchange, gotKey, gotID = exchange, routingKey, messageID
		gotBody = body.(model.CheckinCreatedEvent)
		return nil
	}

	scheduleID := int64(7)
	checkin := &model.Checkin{
		ID: 99, UserID: 1, TagID: 2, ScheduleID: &scheduleID,
		Type: model.CheckinTypeAutomatic, Status: model.CheckinStatusCompleted,
		DistanceMeters: 89, IsWithinRadius: true, CheckinDate: "2024-03-04",
		CreatedAt: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	p := NewProducer(publish, zap.NewNop())
	require.NoError(t, p.PublishCheckinCreated(context.Background(), checkin, "batch-1"))

	assert.Equal(t, mq.CheckinEventsExchange, gotExchange)
	assert.Equal(t, mq.CheckinCreatedRoutingKey, gotKey)
	assert.Equal(t, "checkin_99", gotID)
	assert.Equal(t, "batch-1", gotBody.BatchID)
	assert.Equal(t, "automatic", gotBody.Type)
	assert.Equal(t, "2024-03-04T10:00:00Z", gotBody.OccurredAt)
}

func TestPublishCheckinCreatedError(t *testing.T) {
	p := NewProducer(func(context.Context, string, string, string, interface{}) error {
		return fmt.Errorf("channel closed")
	}, nil)
	err := p.PublishCheckinCreated(context.Background(), &model.Checkin{ID: 1}, "")
	assert.Error(t, err)
}

type fakeRecorder struct {
	calls []service.LocationPingInput
	err   error
}

func (f *fakeRecorder) RecordPing(_ context.Context, in service.LocationPingInput) (*model.LocationPing, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &model.LocationPing{ID: int64(len(f.calls))}, nil
}

func newMarks(t *testing.T) *cache.MessageMarks {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewMessageMarks(client, "test")
}

func TestLocationPingHandler(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := NewLocationPingHandler(recorder, newMarks(t), zap.NewNop())

	tagID := int64(3)
	body, err := json.Marshal(model.LocationPingMessage{
		MessageID: "m-1", UserID: 5, TagID: &tagID,
		Latitude: 37.77, Longitude: -122.41, RecordedAt: "2024-03-04T09:55:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), body))
	require.Len(t, recorder.calls, 1)
	assert.Equal(t, int64(5), recorder.calls[0].UserID)
	assert.Equal(t, "mq", recorder.calls[0].Source)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 55, 0, 0, time.UTC), recorder.calls[0].RecordedAt.UTC())

	// 重复投递被跳过
	require.NoError(t, handler(context.Background(), body))
	assert.Len(t, recorder.calls, 1)
}

func TestLocationPingHandlerDiscardsBadMessages(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := NewLocationPingHandler(recorder, nil, nil)

	err := handler(context.Background(), []byte("{not json"))
	assert.True(t, stderrors.Is(err, mq.ErrDiscard))

	body, _ := json.Marshal(model.LocationPingMessage{MessageID: "m-2", UserID: 1, RecordedAt: "yesterday"})
	err = handler(context.Background(), body)
	assert.True(t, stderrors.Is(err, mq.ErrDiscard))

	recorder.err = fmt.Errorf("bad: %w", errors.InvalidCoordinate)
	body, _ = json.Marshal(model.LocationPingMessage{MessageID: "m-3", UserID: 1, Latitude: 100})
	err = handler(context.Background(), body)
	assert.True(t, stderrors.Is(err, mq.ErrDiscard))
}

func TestLocationPingHandlerRequeuesOnPersistenceFailure(t *testing.T) {
	recorder := &fakeRecorder{err: errors.PersistenceUnavailable}
	marks := newMarks(t)
	handler := NewLocationPingHandler(recorder, marks, nil)

	body, _ := json.Marshal(model.LocationPingMessage{MessageID: "m-4", UserID: 1, Latitude: 1, Longitude: 1})
	err := handler(context.Background(), body)
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, mq.ErrDiscard))

	// 标记已清除，重新投递会再次处理
	recorder.err = nil
	require.NoError(t, handler(context.Background(), body))
	assert.Len(t, recorder.calls, 2)
}
