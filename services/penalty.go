package services

import (
	"context"
	"fmt"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"go.uber.org/zap"
)

type penaltyStore interface {
	repository.TriggerStore
	repository.RecordStore
	repository.UserStore
	repository.PointStore
}

// PenaltyEngine closes triggers whose response window has passed and charges absentees.
type PenaltyEngine struct {
	base
	store    penaltyStore
	cache    rankingCache
	settings Settings
}

// NewPenaltyEngine builds the engine; cache may be nil.
func NewPenaltyEngine(store penaltyStore, cache rankingCache, settings Settings, logger *zap.Logger, opts ...Option) *PenaltyEngine {
	return &PenaltyEngine{
		base:     newBase(logger, opts),
		store:    store,
		cache:    cache,
		settings: settings,
	}
}

// Run completes every overdue notified trigger, plus any left half done in closing,
// and returns how many reached completed.
func (e *PenaltyEngine) Run(ctx context.Context) (int, error) {
	now := e.now()
	pending, err := e.store.ListTriggersInStates(ctx, models.TriggerNotified, models.TriggerClosing)
	if err != nil {
		return 0, fmt.Errorf("list pending triggers: %w", err)
	}

	completed := 0
	for _, t := range pending {
		if t.State == models.TriggerNotified {
			deadline, err := e.settings.Deadline(t.TriggerDate, t.TriggerTime)
			if err != nil {
				e.logger.Error("bad trigger time", zap.Uint("trigger_id", t.ID), zap.Error(err))
				continue
			}
			if now.Before(deadline) {
				continue
			}
		}
		ok, err := e.complete(ctx, t)
		if err != nil {
			e.logger.Error("complete trigger failed", zap.Uint("trigger_id", t.ID), zap.Error(err))
			continue
		}
		if ok {
			completed++
		}
	}
	return completed, nil
}

func (e *PenaltyEngine) complete(ctx context.Context, t repository.TriggerWithCampaign) (bool, error) {
	if t.State == models.TriggerNotified {
		// closing shuts the check-in window before absentees are counted
		ok, err := e.store.AdvanceTrigger(ctx, t.ID, models.TriggerNotified, models.TriggerClosing)
		if err != nil {
			return false, fmt.Errorf("close trigger: %w", err)
		}
		if !ok {
			return false, nil
		}
	}

	users, err := targetUsers(ctx, e.store, t.Campaign, e.settings.DefaultGrades)
	if err != nil {
		return false, fmt.Errorf("resolve population: %w", err)
	}
	signed, err := e.store.CheckedInUserIDs(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("load check-ins: %w", err)
	}
	present := make(map[uint]bool, len(signed))
	for _, id := range signed {
		present[id] = true
	}

	reason := fmt.Sprintf("未参加点名：%s (%s)", t.Campaign.Name, t.TriggerDate)
	penalized, failed := 0, 0
	for _, u := range users {
		if present[u.ID] {
			continue
		}
		triggerID := t.ID
		applied, err := e.store.ApplyPenalty(ctx, &models.PointLog{
			UserID:    u.ID,
			Points:    -t.Campaign.PenaltyPoints,
			Reason:    reason,
			CreatedBy: t.Campaign.CreatedBy,
			TriggerID: &triggerID,
		})
		if err != nil {
			failed++
			e.logger.Error("apply penalty failed", zap.Uint("trigger_id", t.ID), zap.Uint("user_id", u.ID), zap.Error(err))
			continue
		}
		if applied {
			penalized++
		}
	}
	if penalized > 0 {
		dropRanking(ctx, e.cache)
	}
	if failed > 0 {
		// stays in closing; the next run retries only the missing penalties
		return false, fmt.Errorf("%d penalties failed", failed)
	}

	ok, err := e.store.AdvanceTrigger(ctx, t.ID, models.TriggerClosing, models.TriggerCompleted)
	if err != nil {
		return false, fmt.Errorf("complete trigger: %w", err)
	}
	if ok {
		e.logger.Info("trigger completed",
			zap.Uint("trigger_id", t.ID),
			zap.String("name", t.Campaign.Name),
			zap.Int("targeted", len(users)),
			zap.Int("penalized", penalized))
	}
	return ok, nil
}
