package repository

import (
	"context"

	"github.com/robotlab/labhub/models"
)

// CreateTrigger inserts t. A second trigger for the same (campaign, date) yields ErrDuplicate.
func (s *GormStore) CreateTrigger(ctx context.Context, t *models.AttendanceTrigger) error {
	if t.State == "" {
		t.State = models.TriggerScheduled
	}
	return mapErr(s.conn(ctx).Create(t).Error)
}

func (s *GormStore) GetTrigger(ctx context.Context, id uint) (*TriggerWithCampaign, error) {
	var t models.AttendanceTrigger
	if err := s.conn(ctx).First(&t, id).Error; err != nil {
		return nil, mapErr(err)
	}
	joined, err := s.withCampaigns(ctx, []models.AttendanceTrigger{t})
	if err != nil {
		return nil, err
	}
	if len(joined) == 0 {
		return nil, ErrNotFound
	}
	return &joined[0], nil
}

func (s *GormStore) FindTrigger(ctx context.Context, attendanceID uint, date string) (*models.AttendanceTrigger, error) {
	var t models.AttendanceTrigger
	err := s.conn(ctx).Where("attendance_id = ? AND trigger_date = ?", attendanceID, date).First(&t).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

// ListTriggers returns the triggers of the given campaigns, newest date first.
func (s *GormStore) ListTriggers(ctx context.Context, attendanceIDs ...uint) ([]models.AttendanceTrigger, error) {
	var list []models.AttendanceTrigger
	if len(attendanceIDs) == 0 {
		return list, nil
	}
	err := s.conn(ctx).
		Where("attendance_id IN ?", attendanceIDs).
		Order("trigger_date DESC").Order("id DESC").
		Find(&list).Error
	return list, err
}

// ListDueTriggers selects today's scheduled triggers whose time has come.
// HH:MM:SS strings compare correctly as text.
func (s *GormStore) ListDueTriggers(ctx context.Context, date, clock string) ([]TriggerWithCampaign, error) {
	var list []models.AttendanceTrigger
	err := s.conn(ctx).
		Where("trigger_date = ? AND trigger_time <= ? AND state = ?", date, clock, models.TriggerScheduled).
		Order("trigger_time").Order("id").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return s.withCampaigns(ctx, list)
}

func (s *GormStore) ListTriggersInStates(ctx context.Context, states ...string) ([]TriggerWithCampaign, error) {
	var list []models.AttendanceTrigger
	err := s.conn(ctx).
		Where("state IN ?", states).
		Order("trigger_date").Order("trigger_time").Order("id").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return s.withCampaigns(ctx, list)
}

// AdvanceTrigger moves a trigger from one state to the next. It reports false when the
// trigger was no longer in state from, meaning another worker got there first.
func (s *GormStore) AdvanceTrigger(ctx context.Context, id uint, from, to string) (bool, error) {
	res := s.conn(ctx).Model(&models.AttendanceTrigger{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CountTriggersOn(ctx context.Context, date string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.AttendanceTrigger{}).Where("trigger_date = ?", date).Count(&n).Error
	return n, err
}

// withCampaigns attaches each trigger's campaign. Triggers whose campaign is gone are dropped.
func (s *GormStore) withCampaigns(ctx context.Context, triggers []models.AttendanceTrigger) ([]TriggerWithCampaign, error) {
	if len(triggers) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(triggers))
	seen := make(map[uint]bool, len(triggers))
	for _, t := range triggers {
		if !seen[t.AttendanceID] {
			seen[t.AttendanceID] = true
			ids = append(ids, t.AttendanceID)
		}
	}
	var campaigns []models.Attendance
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&campaigns).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Attendance, len(campaigns))
	for _, c := range campaigns {
		byID[c.ID] = c
	}
	out := make([]TriggerWithCampaign, 0, len(triggers))
	for _, t := range triggers {
		c, ok := byID[t.AttendanceID]
		if !ok {
			continue
		}
		out = append(out, TriggerWithCampaign{AttendanceTrigger: t, Campaign: c})
	}
	return out, nil
}
