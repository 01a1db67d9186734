package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/testutil"
)

func automaticCheckin(userID, tagID, scheduleID int64, day string) *model.Checkin {
	return &model.Checkin{
		UserID:         userID,
		TagID:          tagID,
		ScheduleID:     &scheduleID,
		Latitude:       1,
		Longitude:      1,
		DistanceMeters: 10,
		IsWithinRadius: true,
		Type:           model.CheckinTypeAutomatic,
		Status:         model.CheckinStatusCompleted,
		CheckinDate:    day,
		AutoDedupDay:   &day,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestInsertAutomaticDedup(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewCheckinRepository(db)
	ctx := context.Background()

	created, err := repo.InsertAutomatic(ctx, automaticCheckin(1, 1, 7, "2024-03-04"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertAutomatic(ctx, automaticCheckin(1, 2, 7, "2024-03-04"))
	require.NoError(t, err)
	assert.False(t, created, "same user/schedule/day must be skipped even for another tag")

	created, err = repo.InsertAutomatic(ctx, automaticCheckin(1, 1, 7, "2024-03-05"))
	require.NoError(t, err)
	assert.True(t, created)

	has, err := repo.HasAutomaticCheckinToday(ctx, 7, 1, "2024-03-04")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasAutomaticCheckinToday(ctx, 7, 2, "2024-03-04")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestInsertAutomaticConcurrent(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewCheckinRepository(db)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.InsertAutomatic(context.Background(), automaticCheckin(5, 1, 9, "2024-03-04"))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	var total int64
	require.NoError(t, db.Model(&model.Checkin{}).Count(&total).Error)
	assert.Equal(t, int64(1), total)
}

func TestManualCheckinsDoNotConflict(t *testing.T) {
	db := testutil.OpenSQLite(t)
	repo := NewCheckinRepository(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := repo.CreateManual(ctx, &model.Checkin{
			UserID:         1,
			TagID:          3,
			DistanceMeters: 500,
			Type:           model.CheckinTypeManual,
			Status:         model.CheckinStatusFailed,
			CheckinDate:    "2024-03-04",
		})
		require.NoError(t, err)
	}

	found, err := repo.FindCompletedManual(ctx, 1, 3, "2024-03-04")
	require.NoError(t, err)
	assert.Nil(t, found, "failed manual attempts do not count")

	require.NoError(t, repo.CreateManual(ctx, &model.Checkin{
		UserID:         1,
		TagID:          3,
		DistanceMeters: 20,
		IsWithinRadius: true,
		Type:           model.CheckinTypeManual,
		Status:         model.CheckinStatusCompleted,
		CheckinDate:    "2024-03-04",
	}))

	found, err = repo.FindCompletedManual(ctx, 1, 3, "2024-03-04")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsWithinRadius)
}
