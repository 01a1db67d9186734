package service

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"GeoCheckin/internal/cache"
	"GeoCheckin/internal/model"
	"GeoCheckin/internal/repository"
	"GeoCheckin/internal/testutil"
	"GeoCheckin/pkg/errors"
)

const (
	tagLat = 37.7749
	tagLon = -122.4194
	// 约 89 米以北
	nearLat = 37.7757
	// 约 1.1 公里以北
	farLat = 37.7849
)

// 周一 10:00 UTC
var manualNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []*model.Checkin
}

func (p *recordingPublisher) PublishCheckinCreated(_ context.Context, checkin *model.Checkin, _ string) error {
	p.events = append(p.events, checkin)
	return nil
}

type manualEnv struct {
	db        *gorm.DB
	fx        *testutil.Fixture
	mr        *miniredis.Miniredis
	claims    *cache.CheckinClaims
	publisher *recordingPublisher
	svc       *ManualCheckinService
}

func newManualEnv(t *testing.T) *manualEnv {
	t.Helper()
	db := testutil.OpenSQLite(t)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	checkins := repository.NewCheckinRepository(db)
	env := &manualEnv{
		db:        db,
		fx:        testutil.NewFixture(t, db),
		mr:        mr,
		claims:    cache.NewCheckinClaims(client, "test"),
		publisher: &recordingPublisher{},
	}
	env.svc = NewManualCheckinService(ManualCheckinDeps{
		Tags:       repository.NewTagRepository(db),
		Schedules:  repository.NewScheduleRepository(db),
		Checkins:   checkins,
		Ledger:     NewLedger(checkins).WithClock(func() time.Time { return manualNow }),
		Associator: NewGroupAssociator(repository.NewGroupRepository(db), zap.NewNop(), nil),
		Claims:     env.claims,
		Publisher:  env.publisher,
		Logger:     zap.NewNop(),
	}, ManualCheckinConfig{
		Location:      time.UTC,
		DefaultRadius: 100,
		DBTimeout:     time.Second,
	}).WithClock(func() time.Time { return manualNow })
	return env
}

func (e *manualEnv) activeSchedule(tags ...*model.Tag) *model.Schedule {
	return e.fx.Schedule(&model.Schedule{
		DaysOfWeek: pq.Int64Array{1, 2, 3, 4, 5},
		StartTime:  "09:00",
		EndTime:    "17:00",
		Timezone:   "UTC",
		IsActive:   true,
	}, tags...)
}

func TestManualCheckInWithinRadius(t *testing.T) {
	env := newManualEnv(t)
	tag := env.fx.Tag("front-door", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	schedule := env.activeSchedule(tag)
	group := env.fx.Group("morning", schedule.ID)

	res, err := env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon,
	})
	require.NoError(t, err)
	assert.True(t, res.IsWithinRadius)
	assert.InDelta(t, 89, res.DistanceMeters, 1)
	assert.Equal(t, float64(100), res.RadiusMeters)
	assert.Equal(t, model.CheckinStatusCompleted, res.Checkin.Status)
	assert.Equal(t, model.CheckinTypeManual, res.Checkin.Type)
	require.NotNil(t, res.Checkin.ScheduleID)
	assert.Equal(t, schedule.ID, *res.Checkin.ScheduleID)
	assert.Equal(t, "2024-03-04", res.Checkin.CheckinDate)

	member, err := repository.NewGroupRepository(env.db).IsMember(context.Background(), group.ID, 42)
	require.NoError(t, err)
	assert.True(t, member)
	assert.Len(t, env.publisher.events, 1)
}

func TestManualCheckInDuplicate(t *testing.T) {
	env := newManualEnv(t)
	redirect := "https://example.com/done"
	tag := env.fx.Tag("front-door", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	require.NoError(t, env.db.Model(tag).Update("redirect_url", redirect).Error)

	req := ManualCheckinRequest{UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon}
	first, err := env.svc.CheckIn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, redirect, first.RedirectURL)

	_, err = env.svc.CheckIn(context.Background(), req)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.AlreadyCheckedInToday))

	var already *errors.AlreadyCheckedInError
	require.True(t, stderrors.As(err, &already))
	assert.Equal(t, first.Checkin.ID, already.CheckinID)
	assert.Equal(t, redirect, already.RedirectURL)

	var count int64
	require.NoError(t, env.db.Model(&model.Checkin{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManualCheckInOutsideRadius(t *testing.T) {
	env := newManualEnv(t)
	tag := env.fx.Tag("front-door", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	env.activeSchedule(tag)

	res, err := env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: farLat, Longitude: tagLon,
	})
	require.NoError(t, err)
	assert.False(t, res.IsWithinRadius)
	assert.Greater(t, res.DistanceMeters, 1000.0)
	assert.Equal(t, model.CheckinStatusFailed, res.Checkin.Status)
	assert.Nil(t, res.Checkin.ScheduleID)

	var memberships int64
	require.NoError(t, env.db.Model(&model.GroupMembership{}).Count(&memberships).Error)
	assert.Zero(t, memberships)

	// 范围外不占用当天名额
	res, err = env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon,
	})
	require.NoError(t, err)
	assert.True(t, res.IsWithinRadius)
}

func TestManualCheckInRejections(t *testing.T) {
	env := newManualEnv(t)
	ctx := context.Background()

	noGeo := env.fx.Tag("no-geo", nil, nil, 100)
	disabled := env.fx.Tag("disabled", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	require.NoError(t, env.db.Model(disabled).Update("checkin_enabled", false).Error)
	blocked := env.fx.Tag("blocked", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	require.NoError(t, env.db.Model(blocked).Update("status", model.TagStatusBlocked).Error)

	tests := []struct {
		name string
		req  ManualCheckinRequest
		want errors.Definition
	}{
		{"unknown tag", ManualCheckinRequest{UserID: 1, TagID: 9999, Latitude: tagLat, Longitude: tagLon}, errors.TagNotFound},
		{"checkin disabled", ManualCheckinRequest{UserID: 1, TagID: disabled.ID, Latitude: tagLat, Longitude: tagLon}, errors.TagNotFound},
		{"tag blocked", ManualCheckinRequest{UserID: 1, TagID: blocked.ID, Latitude: tagLat, Longitude: tagLon}, errors.TagNotFound},
		{"no geolocation", ManualCheckinRequest{UserID: 1, TagID: noGeo.ID, Latitude: tagLat, Longitude: tagLon}, errors.GeolocationNotConfigured},
		{"latitude out of range", ManualCheckinRequest{UserID: 1, TagID: disabled.ID, Latitude: 91, Longitude: 0}, errors.InvalidCoordinate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CheckIn(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.want), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, env.db.Model(&model.Checkin{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestManualCheckInClaimHeld(t *testing.T) {
	env := newManualEnv(t)
	tag := env.fx.Tag("front-door", testutil.Float(tagLat), testutil.Float(tagLon), 100)

	ok, err := env.claims.TryClaim(context.Background(), 42, tag.ID, "2024-03-04")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon,
	})
	assert.True(t, stderrors.Is(err, errors.AlreadyCheckedInToday))
}

func TestManualCheckInRedisDown(t *testing.T) {
	env := newManualEnv(t)
	tag := env.fx.Tag("front-door", testutil.Float(tagLat), testutil.Float(tagLon), 100)
	env.mr.Close()

	res, err := env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon,
	})
	require.NoError(t, err)
	assert.True(t, res.IsWithinRadius)

	// 数据库兜底仍能识别重复
	_, err = env.svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: tag.ID, Latitude: nearLat, Longitude: tagLon,
	})
	assert.True(t, stderrors.Is(err, errors.AlreadyCheckedInToday))
}

type brokenTags struct{}

func (brokenTags) GetTag(context.Context, int64) (*model.Tag, error) {
	return nil, fmt.Errorf("failed to get tag: %w", driver.ErrBadConn)
}

func TestManualCheckInPersistenceUnavailable(t *testing.T) {
	svc := NewManualCheckinService(ManualCheckinDeps{Tags: brokenTags{}}, ManualCheckinConfig{DefaultRadius: 100})

	_, err := svc.CheckIn(context.Background(), ManualCheckinRequest{
		UserID: 42, TagID: 1, Latitude: nearLat, Longitude: tagLon,
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.PersistenceUnavailable), "got %v", err)
}
