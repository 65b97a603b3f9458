package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"go.uber.org/zap"
)

type dispatcherStore interface {
	repository.TriggerStore
	repository.UserStore
}

// Dispatcher sends the check-in alert for triggers whose time has come.
type Dispatcher struct {
	base
	store    dispatcherStore
	notifier Notifier
	settings Settings
}

func NewDispatcher(store dispatcherStore, notifier Notifier, settings Settings, logger *zap.Logger, opts ...Option) *Dispatcher {
	return &Dispatcher{
		base:     newBase(logger, opts),
		store:    store,
		notifier: notifier,
		settings: settings,
	}
}

// Run notifies every due trigger of today and returns how many moved to notified.
// A failed send leaves the trigger scheduled for the next tick.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.ListDueTriggers(ctx, d.settings.Today(now), d.settings.Clock(now))
	if err != nil {
		return 0, fmt.Errorf("list due triggers: %w", err)
	}

	notified := 0
	for _, t := range due {
		ok, err := d.dispatch(ctx, t)
		if err != nil {
			d.logger.Error("dispatch trigger failed",
				zap.Uint("trigger_id", t.ID),
				zap.String("kind", string(KindOf(err))),
				zap.Error(err))
			continue
		}
		if ok {
			notified++
		}
	}
	return notified, nil
}

// DispatchTrigger notifies a single trigger right away, regardless of its time.
func (d *Dispatcher) DispatchTrigger(ctx context.Context, triggerID uint) error {
	t, err := d.store.GetTrigger(ctx, triggerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound("点名不存在")
		}
		return ErrInternal(err)
	}
	if t.State != models.TriggerScheduled {
		return nil
	}
	_, err = d.dispatch(ctx, *t)
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, t repository.TriggerWithCampaign) (bool, error) {
	users, err := targetUsers(ctx, d.store, t.Campaign, d.settings.DefaultGrades)
	if err != nil {
		return false, ErrInternal(fmt.Errorf("resolve population: %w", err))
	}

	to := emailsOf(users)
	if len(to) > 0 {
		deadline, err := d.settings.Deadline(t.TriggerDate, t.TriggerTime)
		if err != nil {
			return false, ErrInternal(err)
		}
		subject, body := CheckInNotice{
			Campaign:     t.Campaign.Name,
			LocationName: t.Campaign.LocationName,
			Latitude:     t.Campaign.Latitude,
			Longitude:    t.Campaign.Longitude,
			Radius:       t.Campaign.Radius,
			Deadline:     deadline,
		}.Render()
		if err := d.notifier.Send(ctx, to, subject, body); err != nil {
			return false, ErrDependency("notification dispatch failed", err)
		}
	}

	ok, err := d.store.AdvanceTrigger(ctx, t.ID, models.TriggerScheduled, models.TriggerNotified)
	if err != nil {
		return false, ErrInternal(fmt.Errorf("mark notified: %w", err))
	}
	if ok {
		d.logger.Info("trigger notified",
			zap.Uint("trigger_id", t.ID),
			zap.String("name", t.Campaign.Name),
			zap.Int("recipients", len(to)))
	}
	return ok, nil
}
