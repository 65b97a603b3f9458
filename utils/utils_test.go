package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "utils-test-secret")
	os.Exit(m.Run())
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(42, "alice", true, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(1, "bob", false, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestRevocations_InMemory(t *testing.T) {
	ctx := context.Background()
	r := NewRevocations(nil)

	assert.False(t, r.Revoked(ctx, "tok"))
	r.Revoke(ctx, "tok", time.Now().Add(time.Hour))
	assert.True(t, r.Revoked(ctx, "tok"))
	assert.False(t, r.Revoked(ctx, "other"))

	// already expired tokens are not worth remembering
	r.Revoke(ctx, "old", time.Now().Add(-time.Second))
	assert.False(t, r.Revoked(ctx, "old"))
}

func TestLease_NilClientAlwaysAcquires(t *testing.T) {
	ctx := context.Background()
	l := NewLease(nil)

	ok, release := l.Acquire(ctx, "k", time.Second)
	require.NotNil(t, release)
	assert.True(t, ok)
	release()

	var nilLease *Lease
	ok, release = nilLease.Acquire(ctx, "k", time.Second)
	assert.True(t, ok)
	release()
}

func TestCache_NilClientMisses(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil)

	c.SetJSON(ctx, "k", map[string]int{"a": 1}, 0)
	var out map[string]int
	assert.False(t, c.GetJSON(ctx, "k", &out))
	c.Invalidate(ctx, "k")

	var nilCache *Cache
	assert.False(t, nilCache.GetJSON(ctx, "k", &out))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"2024", "2025"}, Unique([]string{"2024", "2025", "2024"}))
	assert.Equal(t, []uint{3, 1, 2}, Unique([]uint{3, 1, 3, 2, 1}))
	assert.Empty(t, Unique([]int(nil)))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "实验室", SanitizeText("  <b>实验室</b> "))
	assert.Equal(t, "x", SanitizeText("<script>alert(1)</script>x"))
}

func TestLayoutValidators(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("hhmm", layoutValidator("15:04")))
	require.NoError(t, v.RegisterValidation("ymd", layoutValidator("2006-01-02")))

	assert.NoError(t, v.Var("21:30", "hhmm"))
	assert.NoError(t, v.Var("", "hhmm"))
	assert.Error(t, v.Var("25:00", "hhmm"))
	assert.Error(t, v.Var("9pm", "hhmm"))
	assert.Error(t, v.Var("9:30", "hhmm"))
	assert.Error(t, v.Var("09:30:00", "hhmm"))

	assert.NoError(t, v.Var("2025-03-01", "ymd"))
	assert.Error(t, v.Var("2025-02-30", "ymd"))
	assert.Error(t, v.Var("03/01/2025", "ymd"))
	assert.Error(t, v.Var("2025-3-1", "ymd"))
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("12345")
	assert.True(t, errors.Is(err, ErrPasswordTooShort))

	hash, err := HashPassword("123456")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "123456"))
	assert.False(t, CheckPassword(hash, "1234567"))
	assert.False(t, CheckPassword("", ""))
}

func TestFail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	Fail(ctx, http.StatusBadRequest, 40012, "not within check-in range", map[string]interface{}{"distance": 556})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"code":40012,"message":"not within check-in range","data":{"distance":556}}`, w.Body.String())

	var none map[string]interface{}
	w = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(w)
	Fail(ctx, http.StatusNotFound, 40401, "用户不存在", none)
	assert.JSONEq(t, `{"code":40401,"message":"用户不存在"}`, w.Body.String())

	w = httptest.NewRecorder()
	ctx, _ = gin.CreateTestContext(w)
	Created(ctx, map[string]int{"id": 3})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"created","data":{"id":3}}`, w.Body.String())
}
