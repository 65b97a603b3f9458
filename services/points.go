package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/utils"
	"go.uber.org/zap"
)

// RankingCacheKey holds the cached points ranking.
const RankingCacheKey = "labhub:ranking"

const (
	defaultAdjustReason = "管理员调整"
	defaultImportReason = "批量导入"
)

// rankingCache is the part of utils.Cache that balance writers need.
type rankingCache interface {
	Invalidate(ctx context.Context, keys ...string)
}

func dropRanking(ctx context.Context, c rankingCache) {
	if c != nil {
		c.Invalidate(ctx, RankingCacheKey)
	}
}

type pointStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByStudentID(ctx context.Context, studentID string) (*models.User, error)
	repository.PointStore
	repository.RequestStore
}

// PointService applies manual point changes. Every change writes the balance and the
// ledger entry together.
type PointService struct {
	base
	store    pointStore
	cache    rankingCache
	notifier Notifier
}

// NewPointService builds the service; cache and notifier may be nil.
func NewPointService(store pointStore, cache rankingCache, notifier Notifier, logger *zap.Logger, opts ...Option) *PointService {
	return &PointService{base: newBase(logger, opts), store: store, cache: cache, notifier: notifier}
}

// Adjust adds delta (which may be negative) to the user's balance and returns the new balance.
func (p *PointService) Adjust(ctx context.Context, userID uint, delta int, reason string, actorID uint) (int, error) {
	if _, err := p.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound("用户不存在")
		}
		return 0, ErrInternal(err)
	}
	balance, err := p.store.AdjustPoints(ctx, &models.PointLog{
		UserID:    userID,
		Points:    delta,
		Reason:    reasonOr(reason, defaultAdjustReason),
		CreatedBy: actorID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound("用户不存在")
		}
		return 0, ErrInternal(err)
	}
	dropRanking(ctx, p.cache)
	p.logger.Info("points adjusted",
		zap.Uint("user_id", userID),
		zap.Int("delta", delta),
		zap.Uint("actor_id", actorID),
		zap.Int("balance", balance))
	return balance, nil
}

// Revert removes a ledger entry and undoes its delta.
func (p *PointService) Revert(ctx context.Context, logID uint) (*models.PointLog, int, error) {
	entry, balance, err := p.store.RevertPointLog(ctx, logID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, 0, ErrNotFound("积分记录不存在")
		case errors.Is(err, repository.ErrTriggerSettling):
			return nil, 0, ErrConflict("该点名尚未结算完成，暂不能撤销")
		}
		return nil, 0, ErrInternal(err)
	}
	dropRanking(ctx, p.cache)
	p.logger.Info("point log reverted",
		zap.Uint("log_id", logID),
		zap.Uint("user_id", entry.UserID),
		zap.Int("balance", balance))
	return entry, balance, nil
}

// SubmitRequest files a member's appeal for a point change.
func (p *PointService) SubmitRequest(ctx context.Context, userID uint, delta int, reason string) (*models.PointRequest, error) {
	reason = utils.SanitizeText(reason)
	if delta == 0 || reason == "" {
		return nil, ErrValidation("请提供积分和理由")
	}
	r := &models.PointRequest{
		UserID: userID,
		Points: delta,
		Reason: reason,
		Status: models.RequestPending,
	}
	if err := p.store.CreatePointRequest(ctx, r); err != nil {
		return nil, ErrInternal(err)
	}
	p.logger.Info("point request submitted",
		zap.Uint("request_id", r.ID),
		zap.Uint("user_id", userID),
		zap.Int("points", delta))
	return r, nil
}

// ResolveRequest approves or rejects a pending request and mails the member the outcome.
// A failed mail does not undo the resolution.
func (p *PointService) ResolveRequest(ctx context.Context, requestID uint, status, comment string, actorID uint) (*models.PointRequest, error) {
	if status != models.RequestApproved && status != models.RequestRejected {
		return nil, ErrValidation("无效的状态")
	}
	r, err := p.store.ResolvePointRequest(ctx, requestID, status, utils.SanitizeText(comment), actorID, p.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound("申诉不存在")
		case errors.Is(err, repository.ErrAlreadyResolved):
			return nil, ErrConflict("该申诉已被处理")
		}
		return nil, ErrInternal(err)
	}
	if status == models.RequestApproved {
		dropRanking(ctx, p.cache)
	}
	p.logger.Info("point request resolved",
		zap.Uint("request_id", r.ID),
		zap.Uint("user_id", r.UserID),
		zap.String("status", status),
		zap.Uint("actor_id", actorID))
	p.notifyOutcome(ctx, r)
	return r, nil
}

func (p *PointService) notifyOutcome(ctx context.Context, r *models.PointRequest) {
	if p.notifier == nil {
		return
	}
	u, err := p.store.GetUser(ctx, r.UserID)
	if err != nil || u.Email == "" {
		return
	}
	subject, body := RequestOutcome{
		Name:    u.Name,
		Points:  r.Points,
		Reason:  r.Reason,
		Status:  r.Status,
		Comment: r.AdminComment,
	}.Render()
	if err := p.notifier.Send(ctx, []string{u.Email}, subject, body); err != nil {
		p.logger.Warn("request outcome mail failed", zap.Uint("request_id", r.ID), zap.Error(err))
	}
}

// ImportRecord is one row of a batch import, keyed by student ID.
type ImportRecord struct {
	StudentID string `json:"studentId"`
	Points    *int   `json:"points"`
}

// ImportResult counts a batch import. Errors names every row that was skipped.
type ImportResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Import applies each record as its own adjustment. A bad row is reported and skipped;
// it never rolls back the rows before it.
func (p *PointService) Import(ctx context.Context, records []ImportRecord, reason string, actorID uint) (ImportResult, error) {
	var res ImportResult
	if len(records) == 0 {
		return res, ErrValidation("请提供有效的导入数据")
	}
	reason = reasonOr(reason, defaultImportReason)
	fail := func(studentID, why string) {
		if studentID == "" {
			studentID = "未知"
		}
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("学号 %s: %s", studentID, why))
	}

	for _, rec := range records {
		sid := strings.TrimSpace(rec.StudentID)
		if sid == "" || rec.Points == nil {
			fail(sid, "数据不完整")
			continue
		}
		u, err := p.store.GetUserByStudentID(ctx, sid)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				fail(sid, "用户不存在")
			} else {
				p.logger.Error("import lookup failed", zap.String("student_id", sid), zap.Error(err))
				fail(sid, "处理失败")
			}
			continue
		}
		if _, err := p.store.AdjustPoints(ctx, &models.PointLog{
			UserID:    u.ID,
			Points:    *rec.Points,
			Reason:    reason,
			CreatedBy: actorID,
		}); err != nil {
			p.logger.Error("import adjust failed", zap.String("student_id", sid), zap.Error(err))
			fail(sid, "处理失败")
			continue
		}
		res.Success++
	}
	if res.Success > 0 {
		dropRanking(ctx, p.cache)
	}
	p.logger.Info("points imported",
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.Uint("actor_id", actorID))
	return res, nil
}

func reasonOr(reason, fallback string) string {
	reason = utils.SanitizeText(reason)
	if strings.TrimSpace(reason) == "" {
		return fallback
	}
	return reason
}
