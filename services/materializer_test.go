package services

import (
	"context"
	"errors"
	"testing"

	"github.com/robotlab/labhub/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializer_CreatesOneTriggerPerActiveCampaign(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	active := seedCampaign(t, s, "2025-03-01", "2025-03-31")
	lastDay := seedCampaign(t, s, "2025-03-01", "2025-03-10")
	future := seedCampaign(t, s, "2025-03-11", "2025-03-31")

	clock := newFakeClock(at("2025-03-10", "21:00:00"))
	m := NewMaterializer(s, nil, testSettings(), nil, WithClock(clock.Now), seeded())

	n, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uint{active.ID, lastDay.ID} {
		tr, err := s.FindTrigger(ctx, id, "2025-03-10")
		require.NoError(t, err)
		assert.Equal(t, models.TriggerScheduled, tr.State)
		assert.False(t, tr.IsManual)
	}
	_, err = s.FindTrigger(ctx, future.ID, "2025-03-10")
	assert.Error(t, err)

	// a second run the same day is a no-op
	n, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	count, err := s.CountTriggersOn(ctx, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMaterializer_TimesStayInsideWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 30; i++ {
		seedCampaign(t, s, "2025-03-01", "2025-03-31")
	}
	clock := newFakeClock(at("2025-03-10", "21:00:00"))
	m := NewMaterializer(s, nil, testSettings(), nil, WithClock(clock.Now), seeded())

	n, err := m.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, n)

	var triggers []models.AttendanceTrigger
	require.NoError(t, s.DB().Find(&triggers).Error)
	for _, tr := range triggers {
		assert.Equal(t, "2025-03-10", tr.TriggerDate)
		assert.GreaterOrEqual(t, tr.TriggerTime, "21:15:00")
		assert.LessOrEqual(t, tr.TriggerTime, "21:25:59")
		assert.Len(t, tr.TriggerTime, 8)
	}
}

func TestMaterializer_DegenerateWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31")

	settings := testSettings()
	settings.WindowStart, settings.WindowEnd = "21:20:00", "21:20:00"
	clock := newFakeClock(at("2025-03-10", "21:00:00"))
	m := NewMaterializer(s, nil, settings, nil, WithClock(clock.Now), seeded())

	_, err := m.Run(ctx)
	require.NoError(t, err)
	tr, err := s.FindTrigger(ctx, c.ID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "21:20:00", tr.TriggerTime)
}

func TestMaterializer_InvertedWindowCreatesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCampaign(t, s, "2025-03-01", "2025-03-31")

	settings := testSettings()
	settings.WindowStart, settings.WindowEnd = "21:30:00", "21:00:00"
	clock := newFakeClock(at("2025-03-10", "21:00:00"))
	m := NewMaterializer(s, nil, settings, nil, WithClock(clock.Now))

	n, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMaterializer_UsesConfiguredTimezone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31")

	// 16:30 UTC on the 9th is already 00:30 on the 10th in CST
	clock := newFakeClock(at("2025-03-10", "00:30:00").UTC())
	m := NewMaterializer(s, nil, testSettings(), nil, WithClock(clock.Now), seeded())

	_, err := m.Run(ctx)
	require.NoError(t, err)
	_, err = s.FindTrigger(ctx, c.ID, "2025-03-10")
	assert.NoError(t, err)
}

func TestMaterializer_MarksEndedCampaignsFinished(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ended := seedCampaign(t, s, "2025-03-01", "2025-03-09")
	seedTrigger(t, s, ended.ID, "2025-03-09", "21:20:00", models.TriggerCompleted)

	clock := newFakeClock(at("2025-03-10", "21:00:00"))
	m := NewMaterializer(s, nil, testSettings(), nil, WithClock(clock.Now))
	_, err := m.Run(ctx)
	require.NoError(t, err)

	got, err := s.GetAttendance(ctx, ended.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
}

func TestTriggerNow(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown campaign", func(t *testing.T) {
		s := newTestStore(t)
		m := NewMaterializer(s, nil, testSettings(), nil)
		_, err := m.TriggerNow(ctx, 42, ManualTrigger{Immediate: true})
		assertServiceError(t, err, KindNotFound, "")
	})

	t.Run("needs a mode", func(t *testing.T) {
		s := newTestStore(t)
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31")
		m := NewMaterializer(s, nil, testSettings(), nil)
		_, err := m.TriggerNow(ctx, c.ID, ManualTrigger{})
		assertServiceError(t, err, KindValidation, "")
	})

	t.Run("custom time", func(t *testing.T) {
		s := newTestStore(t)
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31")
		clock := newFakeClock(at("2025-03-10", "20:00:00"))
		m := NewMaterializer(s, nil, testSettings(), nil, WithClock(clock.Now))

		tr, err := m.TriggerNow(ctx, c.ID, ManualTrigger{CustomTime: "21:30"})
		require.NoError(t, err)
		assert.Equal(t, "2025-03-10", tr.TriggerDate)
		assert.Equal(t, "21:30:00", tr.TriggerTime)
		assert.Equal(t, models.TriggerScheduled, tr.State)
		assert.True(t, tr.IsManual)

		_, err = m.TriggerNow(ctx, c.ID, ManualTrigger{CustomTime: "22:00"})
		assertServiceError(t, err, KindConflict, MsgAlreadyTriggered)
	})

	t.Run("single-digit hour is zero-padded and fires", func(t *testing.T) {
		s := newTestStore(t)
		alice := seedUser(t, s, "alice", "2024")
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
		clock := newFakeClock(at("2025-03-10", "08:00:00"))
		notifier := &fakeNotifier{}
		d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))
		m := NewMaterializer(s, d, testSettings(), nil, WithClock(clock.Now))
		e := NewPenaltyEngine(s, nil, testSettings(), nil, WithClock(clock.Now))

		tr, err := m.TriggerNow(ctx, c.ID, ManualTrigger{CustomTime: "9:30"})
		require.NoError(t, err)
		assert.Equal(t, "09:30:00", tr.TriggerTime)

		clock.Set(at("2025-03-10", "09:31:00"))
		n, err := d.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, notifier.Sent(), 1)

		clock.Set(at("2025-03-10", "12:00:00"))
		n, err = e.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, models.TriggerCompleted, triggerState(t, s, tr.ID))
		assert.Equal(t, -5, points(t, s, alice.ID))
	})

	t.Run("bad custom time", func(t *testing.T) {
		s := newTestStore(t)
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31")
		m := NewMaterializer(s, nil, testSettings(), nil)
		_, err := m.TriggerNow(ctx, c.ID, ManualTrigger{CustomTime: "25:99"})
		assertServiceError(t, err, KindValidation, "")
	})

	t.Run("immediate notifies", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice", "2024")
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
		clock := newFakeClock(at("2025-03-10", "19:05:30"))
		notifier := &fakeNotifier{}
		d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))
		m := NewMaterializer(s, d, testSettings(), nil, WithClock(clock.Now))

		tr, err := m.TriggerNow(ctx, c.ID, ManualTrigger{Immediate: true})
		require.NoError(t, err)
		assert.Equal(t, "19:05:30", tr.TriggerTime)
		assert.Equal(t, models.TriggerNotified, tr.State)
		assert.Equal(t, models.TriggerNotified, triggerState(t, s, tr.ID))
		require.Len(t, notifier.Sent(), 1)
		assert.Equal(t, []string{"alice@lab.test"}, notifier.Sent()[0].To)
	})

	t.Run("immediate with failing transport still creates", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "alice", "2024")
		c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
		clock := newFakeClock(at("2025-03-10", "19:05:30"))
		d := NewDispatcher(s, &fakeNotifier{err: errors.New("smtp down")}, testSettings(), nil, WithClock(clock.Now))
		m := NewMaterializer(s, d, testSettings(), nil, WithClock(clock.Now))

		tr, err := m.TriggerNow(ctx, c.ID, ManualTrigger{Immediate: true})
		require.NoError(t, err)
		assert.Equal(t, models.TriggerScheduled, tr.State)
		assert.Equal(t, models.TriggerScheduled, triggerState(t, s, tr.ID))
	})
}
