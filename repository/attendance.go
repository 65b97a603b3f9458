package repository

import (
	"context"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
)

func (s *GormStore) CreateAttendance(ctx context.Context, a *models.Attendance) error {
	return mapErr(s.conn(ctx).Create(a).Error)
}

func (s *GormStore) UpdateAttendance(ctx context.Context, a *models.Attendance) error {
	return mapErr(s.conn(ctx).Save(a).Error)
}

// DeleteAttendance removes the campaign with its triggers and their check-ins.
// Point logs stay: they are the ledger.
func (s *GormStore) DeleteAttendance(ctx context.Context, id uint) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Attendance{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		triggers := tx.Model(&models.AttendanceTrigger{}).Select("id").Where("attendance_id = ?", id)
		if err := tx.Where("trigger_id IN (?)", triggers).Delete(&models.AttendanceRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("attendance_id = ?", id).Delete(&models.AttendanceTrigger{}).Error
	})
}

func (s *GormStore) GetAttendance(ctx context.Context, id uint) (*models.Attendance, error) {
	var a models.Attendance
	if err := s.conn(ctx).First(&a, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *GormStore) ListAttendances(ctx context.Context) ([]models.Attendance, error) {
	var list []models.Attendance
	err := s.conn(ctx).Order("created_at DESC").Order("id DESC").Find(&list).Error
	return list, err
}

// ListActiveAttendances returns campaigns whose date range covers today and that are not finished.
func (s *GormStore) ListActiveAttendances(ctx context.Context, today string) ([]models.Attendance, error) {
	var list []models.Attendance
	err := s.conn(ctx).
		Where("date_start <= ? AND date_end >= ? AND completed = ?", today, today, false).
		Order("id").
		Find(&list).Error
	return list, err
}

// MarkFinishedAttendances flags campaigns that ended before today and have no unsettled trigger.
func (s *GormStore) MarkFinishedAttendances(ctx context.Context, today string) (int64, error) {
	db := s.conn(ctx)
	unsettled := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.AttendanceTrigger{}).
		Select("1").
		Where("attendance_triggers.attendance_id = attendances.id AND attendance_triggers.state <> ?", models.TriggerCompleted)
	res := db.Model(&models.Attendance{}).
		Where("completed = ? AND date_end < ?", false, today).
		Where("NOT EXISTS (?)", unsettled).
		Update("completed", true)
	return res.RowsAffected, res.Error
}
