package services

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robotlab/labhub/config"
	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var cst = time.FixedZone("CST", 8*3600)

func testSettings() Settings {
	return Settings{
		Location:       cst,
		WindowStart:    "21:15:00",
		WindowEnd:      "21:25:59",
		ResponseWindow: 60 * time.Second,
		DefaultGrades:  []string{"2024", "2025"},
		DefaultPenalty: 5,
	}
}

func at(date, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+clock, cst)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, to []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{To: append([]string(nil), to...), Subject: subject, Body: body})
	return nil
}

func (n *fakeNotifier) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

type fakeCache struct {
	mu      sync.Mutex
	dropped []string
}

func (c *fakeCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, keys...)
}

func (c *fakeCache) Dropped() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dropped...)
}

func newTestStore(t *testing.T) *repository.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "labhub.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.Migrate(db))
	return repository.NewGormStore(db)
}

func seedUser(t *testing.T, s *repository.GormStore, username, grade string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Name: username, Grade: grade, Email: username + "@lab.test"}
	require.NoError(t, s.DB().Create(u).Error)
	return u
}

func seedAdmin(t *testing.T, s *repository.GormStore) *models.User {
	t.Helper()
	u := &models.User{Username: "admin", Name: "admin", Grade: "2024", Email: "admin@lab.test", IsAdmin: true}
	require.NoError(t, s.DB().Create(u).Error)
	return u
}

type campaignOpt func(*models.Attendance)

func withGrades(grades ...string) campaignOpt {
	return func(a *models.Attendance) { a.TargetGrades = datatypes.JSONSlice[string](grades) }
}

func withUsers(ids ...uint) campaignOpt {
	return func(a *models.Attendance) { a.TargetUserIDs = datatypes.JSONSlice[uint](ids) }
}

func seedCampaign(t *testing.T, s *repository.GormStore, start, end string, opts ...campaignOpt) *models.Attendance {
	t.Helper()
	a := &models.Attendance{
		Name:          "晚点名",
		DateStart:     start,
		DateEnd:       end,
		LocationName:  "实验楼 A302",
		Latitude:      36.5,
		Longitude:     116.8,
		Radius:        200,
		PenaltyPoints: 5,
		CreatedBy:     1,
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, s.CreateAttendance(context.Background(), a))
	return a
}

func seedTrigger(t *testing.T, s *repository.GormStore, attendanceID uint, date, clock, state string) *models.AttendanceTrigger {
	t.Helper()
	tr := &models.AttendanceTrigger{AttendanceID: attendanceID, TriggerDate: date, TriggerTime: clock, State: state}
	require.NoError(t, s.CreateTrigger(context.Background(), tr))
	return tr
}

func triggerState(t *testing.T, s *repository.GormStore, id uint) string {
	t.Helper()
	tr, err := s.GetTrigger(context.Background(), id)
	require.NoError(t, err)
	return tr.State
}

func points(t *testing.T, s *repository.GormStore, id uint) int {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Points
}

func seeded() Option {
	return WithRand(rand.New(rand.NewSource(7)))
}

func assertServiceError(t *testing.T, err error, kind Kind, msg string) *Error {
	t.Helper()
	var se *Error
	require.True(t, errors.As(err, &se), "expected *Error, got %v", err)
	assert.Equal(t, kind, se.Kind)
	if msg != "" {
		assert.Equal(t, msg, se.Message)
	}
	return se
}
