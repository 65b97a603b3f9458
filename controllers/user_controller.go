package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robotlab/labhub/middleware"
	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

const rankingTTL = 30 * time.Second

// UserController serves the ranking board, profiles, point changes and appeals.
type UserController struct {
	store   repository.Store
	points  *services.PointService
	members *services.MemberService
	cache   *utils.Cache
	timeout time.Duration
}

func NewUserController(store repository.Store, points *services.PointService, members *services.MemberService, cache *utils.Cache, timeout time.Duration) *UserController {
	return &UserController{store: store, points: points, members: members, cache: cache, timeout: timeout}
}

// Ranking lists every user by points, highest first.
func (u *UserController) Ranking(ctx *gin.Context) {
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	var users []models.User
	if u.cache.GetJSON(rctx, services.RankingCacheKey, &users) {
		utils.Success(ctx, users)
		return
	}
	users, err := u.store.ListUsersByPoints(rctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	u.cache.SetJSON(rctx, services.RankingCacheKey, users, rankingTTL)
	utils.Success(ctx, users)
}

// Me returns the caller's profile.
func (u *UserController) Me(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	user, err := u.store.GetUser(rctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(ctx, services.ErrNotFound("用户不存在"))
			return
		}
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// Logs returns a user's point history. Members may only read their own.
func (u *UserController) Logs(ctx *gin.Context) {
	callerID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if id != callerID && !middleware.IsAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40302, "无权查看")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	logs, err := u.store.ListPointLogs(rctx, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, logs)
}

// AdjustPoints adds a signed delta to a user's balance (admin).
func (u *UserController) AdjustPoints(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Points *int   `json:"points" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "积分必须是数字")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	balance, err := u.points.Adjust(rctx, id, *req.Points, req.Reason, actorID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"newPoints": balance})
}

// RevertLog undoes one point change (admin).
func (u *UserController) RevertLog(ctx *gin.Context) {
	logID, ok := pathID(ctx, "logId")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	entry, balance, err := u.points.Revert(rctx, logID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"newPoints": balance, "originalLog": entry})
}

// SetAdmin grants or drops administrator rights (admin).
func (u *UserController) SetAdmin(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		IsAdmin *bool `json:"isAdmin" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "isAdmin必须是布尔值")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	if err := u.members.SetAdmin(rctx, id, *req.IsAdmin, actorID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id, "isAdmin": *req.IsAdmin})
}

// ResetPassword sets a new password for a user (admin).
func (u *UserController) ResetPassword(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "密码长度至少6位")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	if err := u.members.ResetPassword(rctx, id, req.NewPassword, actorID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

// Delete removes a user with their ledger, check-ins and appeals (admin).
func (u *UserController) Delete(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	if err := u.members.Delete(rctx, id, actorID); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

// BatchImport applies point deltas keyed by student ID (admin).
func (u *UserController) BatchImport(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Records []services.ImportRecord `json:"records"`
		Reason  string                  `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "请提供有效的导入数据")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	res, err := u.points.Import(rctx, req.Records, req.Reason, actorID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// SubmitRequest files the caller's appeal for a point change.
func (u *UserController) SubmitRequest(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req struct {
		Points int    `json:"points"`
		Reason string `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "请提供积分和理由")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	r, err := u.points.SubmitRequest(rctx, userID, req.Points, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, r)
}

// MyRequests lists the caller's appeals.
func (u *UserController) MyRequests(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	u.listRequests(ctx, userID)
}

// Requests lists every appeal, pending first (admin).
func (u *UserController) Requests(ctx *gin.Context) {
	u.listRequests(ctx, 0)
}

func (u *UserController) listRequests(ctx *gin.Context, userID uint) {
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	list, err := u.store.ListPointRequests(rctx, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, list)
}

// ResolveRequest approves or rejects an appeal (admin).
func (u *UserController) ResolveRequest(ctx *gin.Context) {
	actorID, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Status       string `json:"status"`
		AdminComment string `json:"adminComment"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "无效的状态")
		return
	}
	rctx, cancel := storeContext(ctx, u.timeout)
	defer cancel()

	r, err := u.points.ResolveRequest(rctx, id, req.Status, req.AdminComment, actorID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, r)
}
