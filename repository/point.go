package repository

import (
	"context"
	"errors"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyPenalty inserts the log first so the (trigger_id, user_id) index decides whether
// this penalty already happened; only then is the balance moved.
func (s *GormStore) ApplyPenalty(ctx context.Context, log *models.PointLog) (bool, error) {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(log).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", log.UserID).
			UpdateColumn("points", gorm.Expr("points + ?", log.Points)).Error
	})
	if isDuplicate(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AdjustPoints applies a manual delta with its log entry and returns the new balance.
func (s *GormStore) AdjustPoints(ctx context.Context, log *models.PointLog) (int, error) {
	var balance int
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = adjustTx(tx, log)
		return err
	})
	return balance, mapErr(err)
}

// adjustTx locks the user row, moves the balance by log.Points and appends log.
func adjustTx(tx *gorm.DB, log *models.PointLog) (int, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, log.UserID).Error; err != nil {
		return 0, err
	}
	balance := user.Points + log.Points
	if err := tx.Model(&user).UpdateColumn("points", balance).Error; err != nil {
		return 0, err
	}
	return balance, tx.Create(log).Error
}

// RevertPointLog deletes a log entry and reverses its delta. It returns the removed entry
// and the user's new balance. A penalty whose trigger is still being settled cannot be
// reverted: its row is what stops the next tick charging the user again.
func (s *GormStore) RevertPointLog(ctx context.Context, logID uint) (*models.PointLog, int, error) {
	var (
		entry   models.PointLog
		balance int
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, logID).Error; err != nil {
			return err
		}
		if entry.TriggerID != nil {
			var t models.AttendanceTrigger
			err := tx.Select("id", "state").First(&t, *entry.TriggerID).Error
			switch {
			case err == nil && t.State != models.TriggerCompleted:
				return ErrTriggerSettling
			case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, entry.UserID).Error; err != nil {
			return err
		}
		balance = user.Points - entry.Points
		if err := tx.Model(&user).UpdateColumn("points", balance).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PointLog{}, logID).Error
	})
	if err != nil {
		return nil, 0, mapErr(err)
	}
	return &entry, balance, nil
}

func (s *GormStore) ListPointLogs(ctx context.Context, userID uint) ([]models.PointLog, error) {
	var list []models.PointLog
	err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&list).Error
	return list, err
}
