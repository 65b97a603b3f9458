package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/robotlab/labhub/middleware"
	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/services"
	"github.com/robotlab/labhub/utils"
)

const defaultRequestTimeout = 5 * time.Second

// errorCodes are the envelope codes per failure kind.
var errorCodes = map[services.Kind]int{
	services.KindValidation:         40001,
	services.KindConflict:           40009,
	services.KindPreconditionFailed: 40012,
	services.KindNotFound:           40401,
	services.KindDependencyFailure:  50201,
	services.KindInternal:           50001,
}

// respondError writes err in the standard envelope. Internal details only go to the log.
func respondError(ctx *gin.Context, err error) {
	status := services.HTTPStatus(err)
	kind := services.KindOf(err)
	code := errorCodes[kind]

	var se *services.Error
	if !errors.As(err, &se) || kind == services.KindInternal {
		utils.Logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, errorCodes[services.KindInternal], "服务器错误")
		return
	}
	if kind == services.KindDependencyFailure {
		utils.Logger.Warn("dependency failure", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	utils.Fail(ctx, status, code, se.Message, se.Data)
}

func badRequest(ctx *gin.Context, msg string) {
	utils.Error(ctx, http.StatusBadRequest, errorCodes[services.KindValidation], msg)
}

// pathID parses a positive integer route parameter.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func currentUser(ctx *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return id, ok
}

// storeContext bounds a request's store work.
func storeContext(ctx *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx.Request.Context(), timeout)
}

func triggerJSON(t models.AttendanceTrigger) gin.H {
	return gin.H{
		"id":               t.ID,
		"attendanceId":     t.AttendanceID,
		"triggerDate":      t.TriggerDate,
		"triggerTime":      t.TriggerTime,
		"state":            t.State,
		"notificationSent": t.NotificationSent(),
		"completed":        t.IsCompleted(),
		"isManual":         t.IsManual,
		"createdAt":        t.CreatedAt,
	}
}
