package repository

import (
	"context"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
)

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).First(&u, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// GetUserByStudentID resolves the key batch imports use.
func (s *GormStore) GetUserByStudentID(ctx context.Context, studentID string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("student_id = ?", studentID).Order("id").First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// ListUsersByPoints is the ranking board.
func (s *GormStore) ListUsersByPoints(ctx context.Context) ([]models.User, error) {
	var list []models.User
	err := s.conn(ctx).Order("points DESC").Order("id").Find(&list).Error
	return list, err
}

// TargetUsers resolves a campaign population: non-admin members whose grade is in
// grades or whose id is in ids.
func (s *GormStore) TargetUsers(ctx context.Context, grades []string, ids []uint) ([]models.User, error) {
	var list []models.User
	if len(grades) == 0 && len(ids) == 0 {
		return list, nil
	}
	q := s.conn(ctx).Where("is_admin = ?", false)
	switch {
	case len(grades) > 0 && len(ids) > 0:
		q = q.Where("grade IN ? OR id IN ?", grades, ids)
	case len(grades) > 0:
		q = q.Where("grade IN ?", grades)
	default:
		q = q.Where("id IN ?", ids)
	}
	err := q.Order("id").Find(&list).Error
	return list, err
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

// SetAdmin changes the flag that keeps a user out of every targeted population.
func (s *GormStore) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	return s.updateUser(ctx, id, "is_admin", isAdmin)
}

func (s *GormStore) SetPasswordHash(ctx context.Context, id uint, hash string) error {
	return s.updateUser(ctx, id, "password_hash", hash)
}

func (s *GormStore) updateUser(ctx context.Context, id uint, column string, value interface{}) error {
	var u models.User
	if err := s.conn(ctx).Select("id").First(&u, id).Error; err != nil {
		return mapErr(err)
	}
	return s.conn(ctx).Model(&u).Update(column, value).Error
}

// DeleteUser hard-deletes the user so the username can be registered again, taking
// their ledger entries, check-ins and point requests with them.
func (s *GormStore) DeleteUser(ctx context.Context, id uint) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Select("id").First(&u, id).Error; err != nil {
			return err
		}
		for _, m := range []interface{}{&models.PointLog{}, &models.AttendanceRecord{}, &models.PointRequest{}} {
			if err := tx.Where("user_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&models.User{}, id).Error
	})
	return mapErr(err)
}
