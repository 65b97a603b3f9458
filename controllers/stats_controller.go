package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// StatsController provides dashboard counts and the health probe.
type StatsController struct {
	store    repository.Store
	db       pinger
	settings services.Settings
	now      func() time.Time
	timeout  time.Duration
}

func NewStatsController(store repository.Store, db pinger, settings services.Settings, now func() time.Time, timeout time.Duration) *StatsController {
	if now == nil {
		now = time.Now
	}
	return &StatsController{store: store, db: db, settings: settings, now: now, timeout: timeout}
}

// GetStats returns aggregate counts for the dashboard.
func (s *StatsController) GetStats(ctx *gin.Context) {
	rctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()
	today := s.settings.Today(s.now())

	// Fall back to 0 instead of failing the whole endpoint
	userCount, err := s.store.CountUsers(rctx)
	if err != nil {
		userCount = 0
	}
	campaigns, err := s.store.ListActiveAttendances(rctx, today)
	if err != nil {
		campaigns = nil
	}
	triggerCount, err := s.store.CountTriggersOn(rctx, today)
	if err != nil {
		triggerCount = 0
	}
	checkIns, err := s.store.CountRecordsOn(rctx, today)
	if err != nil {
		checkIns = 0
	}

	utils.Success(ctx, gin.H{
		"userCount":         userCount,
		"activeAttendances": len(campaigns),
		"todayTriggerCount": triggerCount,
		"todayCheckInCount": checkIns,
		"date":              today,
	})
}

// Health reports whether the database answers.
func (s *StatsController) Health(ctx *gin.Context) {
	rctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(rctx); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "database unavailable")
		return
	}
	utils.Success(ctx, gin.H{"status": "ok"})
}
