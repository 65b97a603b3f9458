package services

import (
	"context"
	"errors"
	"testing"

	"github.com/robotlab/labhub/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_NotifiesDueTriggers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAdmin(t, s)
	seedUser(t, s, "alice", "2024")
	seedUser(t, s, "bob", "2023")
	carol := seedUser(t, s, "carol", "2022")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"), withUsers(carol.ID))
	due := seedTrigger(t, s, c.ID, "2025-03-10", "21:17:00", models.TriggerScheduled)
	other := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	later := seedTrigger(t, s, other.ID, "2025-03-10", "21:24:00", models.TriggerScheduled)

	notifier := &fakeNotifier{}
	clock := newFakeClock(at("2025-03-10", "21:17:00"))
	d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))

	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.TriggerNotified, triggerState(t, s, due.ID))
	assert.Equal(t, models.TriggerScheduled, triggerState(t, s, later.ID))

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.ElementsMatch(t, []string{"alice@lab.test", "carol@lab.test"}, sent[0].To)
	assert.Equal(t, "【点名通知】晚点名", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "实验楼 A302")
	assert.Contains(t, sent[0].Body, "2025-03-10 21:18:00")

	// nothing new is due, nothing is resent
	n, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, notifier.Sent(), 1)
}

func TestDispatcher_DefaultGradesWhenCampaignNamesNone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", "2024")
	seedUser(t, s, "bob", "2025")
	seedUser(t, s, "old", "2021")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31")
	seedTrigger(t, s, c.ID, "2025-03-10", "21:17:00", models.TriggerScheduled)

	notifier := &fakeNotifier{}
	clock := newFakeClock(at("2025-03-10", "21:20:00"))
	d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))

	_, err := d.Run(ctx)
	require.NoError(t, err)
	require.Len(t, notifier.Sent(), 1)
	assert.ElementsMatch(t, []string{"alice@lab.test", "bob@lab.test"}, notifier.Sent()[0].To)
}

func TestDispatcher_SendFailureKeepsTriggerScheduled(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", "2024")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	tr := seedTrigger(t, s, c.ID, "2025-03-10", "21:17:00", models.TriggerScheduled)

	notifier := &fakeNotifier{err: errors.New("connection refused")}
	clock := newFakeClock(at("2025-03-10", "21:18:00"))
	d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))

	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, models.TriggerScheduled, triggerState(t, s, tr.ID))

	err = d.DispatchTrigger(ctx, tr.ID)
	assertServiceError(t, err, KindDependencyFailure, "")

	// the next tick after recovery sends it
	notifier.err = nil
	n, err = d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.TriggerNotified, triggerState(t, s, tr.ID))
}

func TestDispatcher_EmptyPopulationStillAdvances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("1999"))
	tr := seedTrigger(t, s, c.ID, "2025-03-10", "21:17:00", models.TriggerScheduled)

	notifier := &fakeNotifier{}
	clock := newFakeClock(at("2025-03-10", "21:30:00"))
	d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))

	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, notifier.Sent())
	assert.Equal(t, models.TriggerNotified, triggerState(t, s, tr.ID))
}

func TestDispatcher_IgnoresOtherDays(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", "2024")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	yesterday := seedTrigger(t, s, c.ID, "2025-03-09", "21:17:00", models.TriggerScheduled)

	notifier := &fakeNotifier{}
	clock := newFakeClock(at("2025-03-10", "21:30:00"))
	d := NewDispatcher(s, notifier, testSettings(), nil, WithClock(clock.Now))

	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, models.TriggerScheduled, triggerState(t, s, yesterday.ID))
}

func TestDispatchTrigger_AlreadyNotifiedIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedUser(t, s, "alice", "2024")
	c := seedCampaign(t, s, "2025-03-01", "2025-03-31", withGrades("2024"))
	tr := seedTrigger(t, s, c.ID, "2025-03-10", "21:17:00", models.TriggerNotified)

	notifier := &fakeNotifier{}
	d := NewDispatcher(s, notifier, testSettings(), nil)

	require.NoError(t, d.DispatchTrigger(ctx, tr.ID))
	assert.Empty(t, notifier.Sent())

	err := d.DispatchTrigger(ctx, 999)
	assertServiceError(t, err, KindNotFound, "")
}

func TestCheckInNotice_EscapesMarkup(t *testing.T) {
	subject, body := CheckInNotice{
		Campaign:     "<b>组会</b>",
		LocationName: "A&B",
		Radius:       150,
		Deadline:     at("2025-03-10", "21:21:00"),
	}.Render()
	assert.Equal(t, "【点名通知】<b>组会</b>", subject)
	assert.Contains(t, body, "&lt;b&gt;组会&lt;/b&gt;")
	assert.Contains(t, body, "A&amp;B")
	assert.Contains(t, body, "150 米内")
	assert.Contains(t, body, "2025-03-10 21:21:00")
}
