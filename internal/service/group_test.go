package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/repository"
	"GeoCheckin/internal/testutil"
)

type flakyMembershipStore struct {
	groups  []int64
	failFor map[int64]bool
	members map[[2]int64]bool
}

func (s *flakyMembershipStore) GroupsLinkedToSchedule(context.Context, int64) ([]int64, error) {
	return s.groups, nil
}

func (s *flakyMembershipStore) UpsertGroupMembership(_ context.Context, groupID, userID, _ int64) (bool, error) {
	if s.failFor[groupID] {
		return false, fmt.Errorf("group %d write failed", groupID)
	}
	key := [2]int64{groupID, userID}
	if s.members[key] {
		return false, nil
	}
	s.members[key] = true
	return true, nil
}

func TestEnsureMembershipPartialFailure(t *testing.T) {
	store := &flakyMembershipStore{
		groups:  []int64{1, 2, 3},
		failFor: map[int64]bool{2: true},
		members: map[[2]int64]bool{{3, 9}: true},
	}
	a := NewGroupAssociator(store, nil, nil)

	res, err := a.EnsureMembership(context.Background(), 9, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group 2")
	assert.Equal(t, []int64{1}, res.Added)
	assert.Equal(t, []int64{3}, res.Existed)
	assert.Equal(t, []int64{2}, res.Failed)
}

func TestEnsureMembershipIdempotent(t *testing.T) {
	db := testutil.OpenSQLite(t)
	fx := testutil.NewFixture(t, db)
	schedule := fx.Schedule(&model.Schedule{
		DaysOfWeek: pq.Int64Array{1}, StartTime: "09:00", EndTime: "17:00", IsActive: true,
	})
	g1 := fx.Group("morning", schedule.ID)
	g2 := fx.Group("all", schedule.ID)
	fx.Group("unrelated")

	repo := repository.NewGroupRepository(db)
	a := NewGroupAssociator(repo, nil, nil)
	ctx := context.Background()

	res, err := a.EnsureMembership(ctx, 7, schedule.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{g1.ID, g2.ID}, res.Added)

	res, err = a.EnsureMembership(ctx, 7, schedule.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.ElementsMatch(t, []int64{g1.ID, g2.ID}, res.Existed)

	var count int64
	require.NoError(t, db.Model(&model.GroupMembership{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
