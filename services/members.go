package services

import (
	"context"
	"errors"

	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/utils"
	"go.uber.org/zap"
)

type memberStore interface {
	SetAdmin(ctx context.Context, id uint, isAdmin bool) error
	SetPasswordHash(ctx context.Context, id uint, hash string) error
	DeleteUser(ctx context.Context, id uint) error
}

// MemberService holds the administrator's account operations.
type MemberService struct {
	base
	store memberStore
	cache rankingCache
}

func NewMemberService(store memberStore, cache rankingCache, logger *zap.Logger, opts ...Option) *MemberService {
	return &MemberService{base: newBase(logger, opts), store: store, cache: cache}
}

// SetAdmin grants or drops administrator rights. Administrators are never targeted
// by a campaign, so this also moves the user in or out of every population.
func (m *MemberService) SetAdmin(ctx context.Context, userID uint, isAdmin bool, actorID uint) error {
	if err := m.store.SetAdmin(ctx, userID, isAdmin); err != nil {
		return userErr(err)
	}
	dropRanking(ctx, m.cache)
	m.logger.Info("admin flag changed",
		zap.Uint("user_id", userID),
		zap.Bool("is_admin", isAdmin),
		zap.Uint("actor_id", actorID))
	return nil
}

// ResetPassword replaces a user's password.
func (m *MemberService) ResetPassword(ctx context.Context, userID uint, password string, actorID uint) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooShort) {
			return ErrValidation("密码长度至少6位")
		}
		return ErrInternal(err)
	}
	if err := m.store.SetPasswordHash(ctx, userID, hash); err != nil {
		return userErr(err)
	}
	m.logger.Info("password reset", zap.Uint("user_id", userID), zap.Uint("actor_id", actorID))
	return nil
}

// Delete removes a user with everything recorded against them. Nobody deletes themselves.
func (m *MemberService) Delete(ctx context.Context, userID, actorID uint) error {
	if userID == actorID {
		return ErrValidation("不能删除自己的账户")
	}
	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return userErr(err)
	}
	dropRanking(ctx, m.cache)
	m.logger.Info("user deleted", zap.Uint("user_id", userID), zap.Uint("actor_id", actorID))
	return nil
}

func userErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound("用户不存在")
	}
	return ErrInternal(err)
}
