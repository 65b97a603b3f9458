package services

import (
	"context"
	"testing"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberService_SetAdminMovesPopulation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	bob := seedUser(t, s, "bob", "2024")
	cache := &fakeCache{}
	m := NewMemberService(s, cache, nil)

	require.NoError(t, m.SetAdmin(ctx, alice.ID, true, admin.ID))
	assert.Equal(t, []string{RankingCacheKey}, cache.Dropped())

	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	users, err := targetUsers(ctx, s, *c, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	err = m.SetAdmin(ctx, 999, true, admin.ID)
	assertServiceError(t, err, KindNotFound, "")
}

func TestMemberService_ResetPassword(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	m := NewMemberService(s, nil, nil)

	err := m.ResetPassword(ctx, alice.ID, "12345", admin.ID)
	assertServiceError(t, err, KindValidation, "密码长度至少6位")

	require.NoError(t, m.ResetPassword(ctx, alice.ID, "new-secret", admin.ID))
	u, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword(u.PasswordHash, "new-secret"))

	err = m.ResetPassword(ctx, 999, "new-secret", admin.ID)
	assertServiceError(t, err, KindNotFound, "")
}

func TestMemberService_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	_, err := s.AdjustPoints(ctx, &models.PointLog{UserID: alice.ID, Points: 4, CreatedBy: admin.ID})
	require.NoError(t, err)
	m := NewMemberService(s, nil, nil)

	err = m.Delete(ctx, admin.ID, admin.ID)
	assertServiceError(t, err, KindValidation, "不能删除自己的账户")

	require.NoError(t, m.Delete(ctx, alice.ID, admin.ID))
	logs, err := s.ListPointLogs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	err = m.Delete(ctx, alice.ID, admin.ID)
	assertServiceError(t, err, KindNotFound, "")
}
