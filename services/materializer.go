package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"go.uber.org/zap"
)

type materializerStore interface {
	repository.AttendanceStore
	repository.TriggerStore
}

// Materializer creates each active campaign's trigger for today.
type Materializer struct {
	base
	store      materializerStore
	dispatcher *Dispatcher
	settings   Settings
}

func NewMaterializer(store materializerStore, dispatcher *Dispatcher, settings Settings, logger *zap.Logger, opts ...Option) *Materializer {
	return &Materializer{
		base:       newBase(logger, opts),
		store:      store,
		dispatcher: dispatcher,
		settings:   settings,
	}
}

// Run ensures one trigger per active campaign for today and returns how many it created.
// A campaign that already has today's trigger is left alone. One campaign failing does not
// stop the others.
func (m *Materializer) Run(ctx context.Context) (int, error) {
	today := m.settings.Today(m.now())
	campaigns, err := m.store.ListActiveAttendances(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list active attendances: %w", err)
	}

	created := 0
	for _, c := range campaigns {
		ok, err := m.ensureTrigger(ctx, c, today)
		if err != nil {
			m.logger.Error("materialize trigger failed", zap.Uint("attendance_id", c.ID), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}

	if n, err := m.store.MarkFinishedAttendances(ctx, today); err != nil {
		m.logger.Warn("mark finished attendances failed", zap.Error(err))
	} else if n > 0 {
		m.logger.Info("attendances finished", zap.Int64("count", n))
	}
	return created, nil
}

func (m *Materializer) ensureTrigger(ctx context.Context, c models.Attendance, today string) (bool, error) {
	if _, err := m.store.FindTrigger(ctx, c.ID, today); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	clock, err := m.randomTime()
	if err != nil {
		return false, err
	}
	t := &models.AttendanceTrigger{
		AttendanceID: c.ID,
		TriggerDate:  today,
		TriggerTime:  clock,
		State:        models.TriggerScheduled,
	}
	if err := m.store.CreateTrigger(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	m.logger.Info("trigger scheduled",
		zap.Uint("attendance_id", c.ID),
		zap.String("name", c.Name),
		zap.String("date", today),
		zap.String("time", clock))
	return true, nil
}

// randomTime draws a second uniformly from [WindowStart, WindowEnd].
func (m *Materializer) randomTime() (string, error) {
	start, err := secondsOfDay(m.settings.WindowStart)
	if err != nil {
		return "", fmt.Errorf("trigger window start: %w", err)
	}
	end, err := secondsOfDay(m.settings.WindowEnd)
	if err != nil {
		return "", fmt.Errorf("trigger window end: %w", err)
	}
	if end < start {
		return "", fmt.Errorf("trigger window %s-%s is inverted", m.settings.WindowStart, m.settings.WindowEnd)
	}
	return formatSeconds(start + m.intn(end-start+1)), nil
}

// ManualTrigger is an administrator's out-of-band trigger request.
type ManualTrigger struct {
	Immediate  bool   `json:"immediate"`
	CustomTime string `json:"customTime" binding:"omitempty,hhmm"`
}

// TriggerNow creates today's trigger for a campaign on demand. In immediate mode the
// notification goes out before returning; a failed send is left to the next tick.
func (m *Materializer) TriggerNow(ctx context.Context, attendanceID uint, req ManualTrigger) (*models.AttendanceTrigger, error) {
	c, err := m.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound("点名任务不存在")
		}
		return nil, ErrInternal(err)
	}

	now := m.now()
	today := m.settings.Today(now)
	if _, err := m.store.FindTrigger(ctx, c.ID, today); err == nil {
		return nil, ErrConflict(MsgAlreadyTriggered)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(err)
	}

	var clock string
	switch {
	case req.Immediate:
		clock = m.settings.Clock(now)
	case req.CustomTime != "":
		sec, err := secondsOfDay(req.CustomTime + ":00")
		if err != nil {
			return nil, ErrValidation("自定义时间格式应为 HH:MM")
		}
		clock = formatSeconds(sec)
	default:
		return nil, ErrValidation("请选择立即触发或设置自定义时间")
	}

	t := &models.AttendanceTrigger{
		AttendanceID: c.ID,
		TriggerDate:  today,
		TriggerTime:  clock,
		State:        models.TriggerScheduled,
		IsManual:     true,
	}
	if err := m.store.CreateTrigger(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict(MsgAlreadyTriggered)
		}
		return nil, ErrInternal(err)
	}
	m.logger.Info("manual trigger created",
		zap.Uint("attendance_id", c.ID),
		zap.Uint("trigger_id", t.ID),
		zap.String("time", clock),
		zap.Bool("immediate", req.Immediate))

	if req.Immediate && m.dispatcher != nil {
		if err := m.dispatcher.DispatchTrigger(ctx, t.ID); err != nil {
			m.logger.Warn("immediate dispatch failed, scheduler will retry", zap.Uint("trigger_id", t.ID), zap.Error(err))
		} else {
			t.State = models.TriggerNotified
		}
	}
	return t, nil
}
