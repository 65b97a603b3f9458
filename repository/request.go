package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestWithUser is a point request joined with the member's display fields.
type RequestWithUser struct {
	models.PointRequest
	Username  string `json:"username"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	ClassName string `json:"className"`
}

func (s *GormStore) CreatePointRequest(ctx context.Context, r *models.PointRequest) error {
	return mapErr(s.conn(ctx).Create(r).Error)
}

func (s *GormStore) GetPointRequest(ctx context.Context, id uint) (*models.PointRequest, error) {
	var r models.PointRequest
	if err := s.conn(ctx).First(&r, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// ListPointRequests returns one member's requests, or everyone's when userID is 0.
// Pending requests come first, then approved, then rejected; newest first within each.
func (s *GormStore) ListPointRequests(ctx context.Context, userID uint) ([]RequestWithUser, error) {
	var list []RequestWithUser
	q := s.conn(ctx).Model(&models.PointRequest{}).
		Select("point_requests.*, users.username, users.name, users.student_id, users.class_name").
		Joins("JOIN users ON users.id = point_requests.user_id")
	if userID != 0 {
		q = q.Where("point_requests.user_id = ?", userID)
	}
	order := fmt.Sprintf("CASE point_requests.status WHEN '%s' THEN 1 WHEN '%s' THEN 2 ELSE 3 END",
		models.RequestPending, models.RequestApproved)
	err := q.Order(order).
		Order("point_requests.created_at DESC").
		Order("point_requests.id DESC").
		Scan(&list).Error
	return list, err
}

// ResolvePointRequest moves a pending request to status. Approval appends a ledger
// entry and moves the balance in the same transaction; a request for a member who has
// since been removed is resolved without one.
func (s *GormStore) ResolvePointRequest(ctx context.Context, id uint, status, comment string, actorID uint, at time.Time) (*models.PointRequest, error) {
	var r models.PointRequest
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, id).Error; err != nil {
			return err
		}
		if r.Status != models.RequestPending {
			return ErrAlreadyResolved
		}
		res := tx.Model(&models.PointRequest{}).
			Where("id = ? AND status = ?", id, models.RequestPending).
			Updates(map[string]interface{}{
				"status":        status,
				"admin_comment": comment,
				"responded_by":  actorID,
				"responded_at":  at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}
		r.Status, r.AdminComment, r.RespondedBy, r.RespondedAt = status, comment, &actorID, &at

		if status != models.RequestApproved {
			return nil
		}
		_, err := adjustTx(tx, &models.PointLog{
			UserID:    r.UserID,
			Points:    r.Points,
			Reason:    "申诉通过: " + r.Reason,
			CreatedBy: actorID,
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}
