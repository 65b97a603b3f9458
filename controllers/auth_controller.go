package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/robotlab/labhub/repository"
	"github.com/robotlab/labhub/utils"
)

// AuthController issues tokens for local accounts.
type AuthController struct {
	users    repository.UserStore
	revoked  *utils.Revocations
	tokenTTL time.Duration
	timeout  time.Duration
}

func NewAuthController(users repository.UserStore, revoked *utils.Revocations, tokenTTL, timeout time.Duration) *AuthController {
	return &AuthController{users: users, revoked: revoked, tokenTTL: tokenTTL, timeout: timeout}
}

// Login checks the password and returns a bearer token with the user's profile.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "请输入用户名和密码")
		return
	}

	rctx, cancel := storeContext(ctx, a.timeout)
	defer cancel()
	user, err := a.users.GetUserByUsername(rctx, strings.TrimSpace(req.Username))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			respondError(ctx, err)
			return
		}
		utils.Error(ctx, http.StatusUnauthorized, 40106, "用户名或密码错误")
		return
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "用户名或密码错误")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, user.IsAdmin, a.tokenTTL)
	if err != nil {
		utils.Logger.Error("generate token failed", zap.Uint("user_id", user.ID), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout revokes the bearer token until its natural expiry.
func (a *AuthController) Logout(ctx *gin.Context) {
	parts := strings.SplitN(ctx.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	token := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}

	expiresAt := time.Now().Add(a.tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	a.revoked.Revoke(ctx.Request.Context(), token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}
