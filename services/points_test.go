package services

import (
	"context"
	"errors"
	"testing"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointService_AdjustAndRevert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	p := NewPointService(s, utils.NewCache(nil), nil, nil)

	balance, err := p.Adjust(ctx, alice.ID, 10, "  <i>组会汇报</i> ", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	balance, err = p.Adjust(ctx, alice.ID, -3, "", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	logs, err := s.ListPointLogs(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	reasons := []string{logs[0].Reason, logs[1].Reason}
	assert.ElementsMatch(t, []string{"组会汇报", "管理员调整"}, reasons)
	assert.Equal(t, admin.ID, logs[0].CreatedBy)
	assert.Nil(t, logs[0].TriggerID)

	var plusTen uint
	for _, l := range logs {
		if l.Points == 10 {
			plusTen = l.ID
		}
	}
	entry, balance, err := p.Revert(ctx, plusTen)
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Points)
	assert.Equal(t, -3, balance)
	assert.Equal(t, -3, points(t, s, alice.ID))
}

func TestPointService_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	p := NewPointService(s, nil, nil, nil)

	_, err := p.Adjust(ctx, 999, 5, "x", 1)
	assertServiceError(t, err, KindNotFound, "")

	_, _, err = p.Revert(ctx, 999)
	assertServiceError(t, err, KindNotFound, "")
}

func TestPointService_RevertWaitsForSettlement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := seedUser(t, s, "alice", "2024")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	tr := seedTrigger(t, s, c.ID, "2025-03-10", "21:20:00", models.TriggerClosing)
	id := tr.ID
	penalty := &models.PointLog{UserID: alice.ID, Points: -5, TriggerID: &id}
	_, err := s.ApplyPenalty(ctx, penalty)
	require.NoError(t, err)

	cache := &fakeCache{}
	p := NewPointService(s, cache, nil, nil)
	_, _, err = p.Revert(ctx, penalty.ID)
	assertServiceError(t, err, KindConflict, "")
	assert.Empty(t, cache.Dropped())

	// once settled, a revert cannot be undone by the next run
	clock := newFakeClock(at("2025-03-10", "21:30:00"))
	e := NewPenaltyEngine(s, nil, testSettings(), nil, WithClock(clock.Now))
	_, err = e.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, models.TriggerCompleted, triggerState(t, s, tr.ID))

	_, balance, err := p.Revert(ctx, penalty.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
	assert.Equal(t, []string{RankingCacheKey}, cache.Dropped())

	_, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, points(t, s, alice.ID))
}

func TestPointService_Requests(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	p := NewPointService(s, cache, notifier, nil)

	_, err := p.SubmitRequest(ctx, alice.ID, 0, "补签")
	assertServiceError(t, err, KindValidation, "")
	_, err = p.SubmitRequest(ctx, alice.ID, 3, "  <b></b> ")
	assertServiceError(t, err, KindValidation, "")

	r, err := p.SubmitRequest(ctx, alice.ID, 3, "<i>补签</i>")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, r.Status)
	assert.Equal(t, "补签", r.Reason)

	_, err = p.ResolveRequest(ctx, r.ID, "maybe", "", admin.ID)
	assertServiceError(t, err, KindValidation, "")
	_, err = p.ResolveRequest(ctx, 999, models.RequestApproved, "", admin.ID)
	assertServiceError(t, err, KindNotFound, "")

	resolved, err := p.ResolveRequest(ctx, r.ID, models.RequestApproved, "核实无误", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)
	assert.Equal(t, 3, points(t, s, alice.ID))
	assert.Equal(t, []string{RankingCacheKey}, cache.Dropped())

	require.Len(t, notifier.Sent(), 1)
	mail := notifier.Sent()[0]
	assert.Equal(t, []string{"alice@lab.test"}, mail.To)
	assert.Contains(t, mail.Body, "已批准")
	assert.Contains(t, mail.Body, "+3 分")
	assert.Contains(t, mail.Body, "核实无误")

	_, err = p.ResolveRequest(ctx, r.ID, models.RequestRejected, "", admin.ID)
	assertServiceError(t, err, KindConflict, "该申诉已被处理")
	assert.Equal(t, 3, points(t, s, alice.ID))
}

func TestPointService_ResolveSurvivesMailFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	p := NewPointService(s, nil, &fakeNotifier{err: errors.New("smtp down")}, nil)

	r, err := p.SubmitRequest(ctx, alice.ID, -2, "多加了")
	require.NoError(t, err)
	resolved, err := p.ResolveRequest(ctx, r.ID, models.RequestRejected, "", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, resolved.Status)
	assert.Equal(t, 0, points(t, s, alice.ID))
}

func TestPointService_Import(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	admin := seedAdmin(t, s)
	alice := seedUser(t, s, "alice", "2024")
	require.NoError(t, s.DB().Model(alice).Update("student_id", "20240001").Error)
	cache := &fakeCache{}
	p := NewPointService(s, cache, nil, nil)

	_, err := p.Import(ctx, nil, "", admin.ID)
	assertServiceError(t, err, KindValidation, "")

	five, minusTwo := 5, -2
	res, err := p.Import(ctx, []ImportRecord{
		{StudentID: "20240001", Points: &five},
		{StudentID: "20240001", Points: &minusTwo},
		{StudentID: "20249999", Points: &five},
		{StudentID: "", Points: &five},
		{StudentID: "20240001"},
	}, "", admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, []string{
		"学号 20249999: 用户不存在",
		"学号 未知: 数据不完整",
		"学号 20240001: 数据不完整",
	}, res.Errors)
	assert.Equal(t, 3, points(t, s, alice.ID))
	assert.Equal(t, []string{RankingCacheKey}, cache.Dropped())

	logs, err := s.ListPointLogs(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "批量导入", logs[0].Reason)
	assert.Equal(t, admin.ID, logs[0].CreatedBy)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(ErrValidation("x")))
	assert.Equal(t, 400, HTTPStatus(ErrConflict(MsgAlreadyCheckedIn)))
	assert.Equal(t, 400, HTTPStatus(ErrPrecondition(MsgOutOfRange, nil)))
	assert.Equal(t, 404, HTTPStatus(ErrNotFound("x")))
	assert.Equal(t, 502, HTTPStatus(ErrDependency("x", nil)))
	assert.Equal(t, 500, HTTPStatus(ErrInternal(assert.AnError)))
	assert.Equal(t, 500, HTTPStatus(assert.AnError))
}
