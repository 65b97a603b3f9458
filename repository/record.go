package repository

import (
	"context"
	"errors"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertRecord stores a check-in. The trigger row is locked and re-read so the insert
// cannot land after the penalty engine closed the window.
func (s *GormStore) InsertRecord(ctx context.Context, r *models.AttendanceRecord) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.AttendanceTrigger
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, r.TriggerID).Error; err != nil {
			return err
		}
		if !t.Open() {
			return ErrTriggerClosed
		}
		return tx.Create(r).Error
	})
	if errors.Is(err, ErrTriggerClosed) {
		return err
	}
	return mapErr(err)
}

func (s *GormStore) FindRecord(ctx context.Context, triggerID, userID uint) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := s.conn(ctx).Where("trigger_id = ? AND user_id = ?", triggerID, userID).First(&r).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *GormStore) CheckedInUserIDs(ctx context.Context, triggerID uint) ([]uint, error) {
	var ids []uint
	err := s.conn(ctx).Model(&models.AttendanceRecord{}).Where("trigger_id = ?", triggerID).Pluck("user_id", &ids).Error
	return ids, err
}

func (s *GormStore) CountRecords(ctx context.Context, triggerIDs ...uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(triggerIDs))
	if len(triggerIDs) == 0 {
		return counts, nil
	}
	var rows []TriggerCount
	err := s.conn(ctx).Model(&models.AttendanceRecord{}).
		Select("trigger_id, COUNT(*) AS count").
		Where("trigger_id IN ?", triggerIDs).
		Group("trigger_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TriggerID] = row.Count
	}
	return counts, nil
}

// UserRecords returns the user's check-ins keyed by trigger id.
func (s *GormStore) UserRecords(ctx context.Context, userID uint, triggerIDs ...uint) (map[uint]models.AttendanceRecord, error) {
	out := make(map[uint]models.AttendanceRecord)
	if len(triggerIDs) == 0 {
		return out, nil
	}
	var list []models.AttendanceRecord
	err := s.conn(ctx).Where("user_id = ? AND trigger_id IN ?", userID, triggerIDs).Find(&list).Error
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		out[r.TriggerID] = r
	}
	return out, nil
}

// ListRecords returns check-ins with member names, earliest first.
func (s *GormStore) ListRecords(ctx context.Context, triggerIDs ...uint) ([]RecordWithUser, error) {
	var list []RecordWithUser
	if len(triggerIDs) == 0 {
		return list, nil
	}
	err := s.conn(ctx).Model(&models.AttendanceRecord{}).
		Select("attendance_records.*, users.username, users.name, users.student_id").
		Joins("LEFT JOIN users ON users.id = attendance_records.user_id").
		Where("attendance_records.trigger_id IN ?", triggerIDs).
		Order("attendance_records.signed_at").
		Scan(&list).Error
	return list, err
}

// CountRecordsOn counts check-ins made for triggers dated on date.
func (s *GormStore) CountRecordsOn(ctx context.Context, date string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.AttendanceRecord{}).
		Joins("JOIN attendance_triggers ON attendance_triggers.id = attendance_records.trigger_id").
		Where("attendance_triggers.trigger_date = ?", date).
		Count(&n).Error
	return n, err
}
