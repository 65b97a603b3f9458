package repository

import (
	"context"

	"github.com/robotlab/labhub/models"
)

func (s *GormStore) ListRules(ctx context.Context) ([]models.Rule, error) {
	var list []models.Rule
	err := s.conn(ctx).Order("points DESC").Order("id").Find(&list).Error
	return list, err
}

func (s *GormStore) GetRule(ctx context.Context, id uint) (*models.Rule, error) {
	var r models.Rule
	if err := s.conn(ctx).First(&r, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *GormStore) CreateRule(ctx context.Context, r *models.Rule) error {
	return mapErr(s.conn(ctx).Create(r).Error)
}

// UpdateRule overwrites name, points and description. Callers check existence first.
func (s *GormStore) UpdateRule(ctx context.Context, r *models.Rule) error {
	err := s.conn(ctx).Model(&models.Rule{}).Where("id = ?", r.ID).
		Select("name", "points", "description").
		Updates(r).Error
	return mapErr(err)
}

func (s *GormStore) DeleteRule(ctx context.Context, id uint) error {
	res := s.conn(ctx).Delete(&models.Rule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
