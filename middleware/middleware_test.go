package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotlab/labhub/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "middleware-test-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func protectedRouter(revoked *utils.Revocations) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(revoked), func(ctx *gin.Context) {
		id, _ := UserID(ctx)
		ctx.JSON(http.StatusOK, gin.H{"id": id, "admin": IsAdmin(ctx)})
	})
	r.GET("/admin", AuthRequired(revoked), AdminRequired(), func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	revoked := utils.NewRevocations(nil)
	r := protectedRouter(revoked)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer not.a.jwt").Code)

	token, err := utils.GenerateToken(7, "alice", false, time.Hour)
	require.NoError(t, err)
	w := get(r, "/me", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"admin":false}`, w.Body.String())

	expired, err := utils.GenerateToken(7, "alice", false, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer "+expired).Code)

	revoked.Revoke(context.Background(), token, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer "+token).Code)
}

func TestAdminRequired(t *testing.T) {
	r := protectedRouter(nil)

	member, err := utils.GenerateToken(7, "alice", false, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", "Bearer "+member).Code)

	admin, err := utils.GenerateToken(1, "root", true, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", "Bearer "+admin).Code)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/limited", RateLimit(2), func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	r.GET("/other", RateLimit(2), func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/limited", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/limited", "").Code)

	// separate routes keep separate buckets
	assert.Equal(t, http.StatusOK, get(r, "/other", "").Code)
}
