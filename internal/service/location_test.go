package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/repository"
	"GeoCheckin/internal/testutil"
	"GeoCheckin/pkg/errors"
)

func TestRecordPing(t *testing.T) {
	db := testutil.OpenSQLite(t)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	svc := NewLocationService(repository.NewLocationRepository(db), nil, nil, time.Second).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	ping, err := svc.RecordPing(ctx, LocationPingInput{
		UserID: 1, TagID: testutil.Int64(2), Latitude: tagLat, Longitude: tagLon,
	})
	require.NoError(t, err)
	assert.NotZero(t, ping.ID)
	assert.Equal(t, now, ping.RecordedAt)

	earlier := now.Add(-10 * time.Minute).In(time.FixedZone("PDT", -7*3600))
	ping, err = svc.RecordPing(ctx, LocationPingInput{
		UserID: 1, Latitude: tagLat, Longitude: tagLon, RecordedAt: earlier, Accuracy: testutil.Float(12),
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ping.RecordedAt.Location())

	var count int64
	require.NoError(t, db.Model(&model.LocationPing{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRecordPingValidation(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	svc := NewLocationService(repository.NewLocationRepository(testutil.OpenSQLite(t)), nil, nil, 0).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	tests := []struct {
		name string
		in   LocationPingInput
		want errors.Definition
	}{
		{"missing user", LocationPingInput{Latitude: 1, Longitude: 1}, errors.InvalidRequest},
		{"bad longitude", LocationPingInput{UserID: 1, Latitude: 1, Longitude: 181}, errors.InvalidCoordinate},
		{"negative accuracy", LocationPingInput{UserID: 1, Accuracy: testutil.Float(-1)}, errors.InvalidRequest},
		{"future timestamp", LocationPingInput{UserID: 1, RecordedAt: now.Add(time.Hour)}, errors.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPing(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsClientError(err))
		})
	}
}
