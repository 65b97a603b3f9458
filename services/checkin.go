package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/utils"
	"go.uber.org/zap"
)

type checkInStore interface {
	GetTrigger(ctx context.Context, id uint) (*repository.TriggerWithCampaign, error)
	repository.RecordStore
}

// CheckInService validates and records check-ins against a trigger's geofence.
type CheckInService struct {
	base
	store checkInStore
}

func NewCheckInService(store checkInStore, logger *zap.Logger, opts ...Option) *CheckInService {
	return &CheckInService{base: newBase(logger, opts), store: store}
}

// CheckInResult is returned on success. Distance is rounded to the meter.
type CheckInResult struct {
	Distance int       `json:"distance"`
	SignedAt time.Time `json:"signedAt"`
}

// CheckIn records userID's check-in for triggerID at (lat, lon).
func (s *CheckInService) CheckIn(ctx context.Context, triggerID, userID uint, lat, lon float64) (*CheckInResult, error) {
	t, err := s.store.GetTrigger(ctx, triggerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound("点名不存在")
		}
		return nil, ErrInternal(err)
	}
	if !t.Open() {
		return nil, ErrConflict(MsgWindowClosed)
	}

	if _, err := s.store.FindRecord(ctx, triggerID, userID); err == nil {
		return nil, ErrConflict(MsgAlreadyCheckedIn)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInternal(err)
	}

	distance := utils.HaversineMeters(lat, lon, t.Campaign.Latitude, t.Campaign.Longitude)
	rounded := int(math.Round(distance))
	if distance > t.Campaign.Radius {
		return nil, ErrPrecondition(MsgOutOfRange, map[string]interface{}{
			"distance": rounded,
			"required": t.Campaign.Radius,
		})
	}

	rec := &models.AttendanceRecord{
		TriggerID: triggerID,
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		SignedAt:  s.now(),
	}
	switch err := s.store.InsertRecord(ctx, rec); {
	case err == nil:
	case errors.Is(err, repository.ErrTriggerClosed):
		return nil, ErrConflict(MsgWindowClosed)
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrConflict(MsgAlreadyCheckedIn)
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound("点名不存在")
	default:
		return nil, ErrInternal(err)
	}

	s.logger.Info("checked in",
		zap.Uint("trigger_id", triggerID),
		zap.Uint("user_id", userID),
		zap.Int("distance", rounded))
	return &CheckInResult{Distance: rounded, SignedAt: rec.SignedAt}, nil
}
