// Package repository is the single storage access layer. Services depend on the
// narrow interfaces below; GormStore implements all of them.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robotlab/labhub/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejected the write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrTriggerClosed is returned when a check-in races the window close.
	ErrTriggerClosed = errors.New("trigger closed")
	// ErrTriggerSettling is returned when reverting a penalty whose trigger is not completed.
	ErrTriggerSettling = errors.New("trigger not completed")
	// ErrAlreadyResolved is returned when a point request was already approved or rejected.
	ErrAlreadyResolved = errors.New("request already resolved")
)

// TriggerWithCampaign is a trigger joined with the campaign fields the engines need.
type TriggerWithCampaign struct {
	models.AttendanceTrigger
	Campaign models.Attendance
}

// RecordWithUser is a check-in joined with the member's display fields.
type RecordWithUser struct {
	models.AttendanceRecord
	Username  string `json:"username"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
}

// TriggerCount is the number of check-ins for one trigger.
type TriggerCount struct {
	TriggerID uint
	Count     int64
}

type AttendanceStore interface {
	CreateAttendance(ctx context.Context, a *models.Attendance) error
	UpdateAttendance(ctx context.Context, a *models.Attendance) error
	DeleteAttendance(ctx context.Context, id uint) error
	GetAttendance(ctx context.Context, id uint) (*models.Attendance, error)
	ListAttendances(ctx context.Context) ([]models.Attendance, error)
	ListActiveAttendances(ctx context.Context, today string) ([]models.Attendance, error)
	MarkFinishedAttendances(ctx context.Context, today string) (int64, error)
}

type TriggerStore interface {
	CreateTrigger(ctx context.Context, t *models.AttendanceTrigger) error
	GetTrigger(ctx context.Context, id uint) (*TriggerWithCampaign, error)
	FindTrigger(ctx context.Context, attendanceID uint, date string) (*models.AttendanceTrigger, error)
	ListTriggers(ctx context.Context, attendanceIDs ...uint) ([]models.AttendanceTrigger, error)
	ListDueTriggers(ctx context.Context, date, clock string) ([]TriggerWithCampaign, error)
	ListTriggersInStates(ctx context.Context, states ...string) ([]TriggerWithCampaign, error)
	AdvanceTrigger(ctx context.Context, id uint, from, to string) (bool, error)
	CountTriggersOn(ctx context.Context, date string) (int64, error)
}

type RecordStore interface {
	InsertRecord(ctx context.Context, r *models.AttendanceRecord) error
	FindRecord(ctx context.Context, triggerID, userID uint) (*models.AttendanceRecord, error)
	CheckedInUserIDs(ctx context.Context, triggerID uint) ([]uint, error)
	CountRecords(ctx context.Context, triggerIDs ...uint) (map[uint]int64, error)
	UserRecords(ctx context.Context, userID uint, triggerIDs ...uint) (map[uint]models.AttendanceRecord, error)
	ListRecords(ctx context.Context, triggerIDs ...uint) ([]RecordWithUser, error)
	CountRecordsOn(ctx context.Context, date string) (int64, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByStudentID(ctx context.Context, studentID string) (*models.User, error)
	ListUsersByPoints(ctx context.Context) ([]models.User, error)
	TargetUsers(ctx context.Context, grades []string, ids []uint) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	SetAdmin(ctx context.Context, id uint, isAdmin bool) error
	SetPasswordHash(ctx context.Context, id uint, hash string) error
	// DeleteUser removes the member with their ledger, check-ins and requests.
	DeleteUser(ctx context.Context, id uint) error
}

type PointStore interface {
	// ApplyPenalty appends a trigger-keyed log and moves the balance in one transaction.
	// It reports false when the (trigger, user) penalty already exists.
	ApplyPenalty(ctx context.Context, log *models.PointLog) (bool, error)
	AdjustPoints(ctx context.Context, log *models.PointLog) (int, error)
	RevertPointLog(ctx context.Context, logID uint) (*models.PointLog, int, error)
	ListPointLogs(ctx context.Context, userID uint) ([]models.PointLog, error)
}

type RequestStore interface {
	CreatePointRequest(ctx context.Context, r *models.PointRequest) error
	GetPointRequest(ctx context.Context, id uint) (*models.PointRequest, error)
	ListPointRequests(ctx context.Context, userID uint) ([]RequestWithUser, error)
	ResolvePointRequest(ctx context.Context, id uint, status, comment string, actorID uint, at time.Time) (*models.PointRequest, error)
}

type RuleStore interface {
	ListRules(ctx context.Context) ([]models.Rule, error)
	GetRule(ctx context.Context, id uint) (*models.Rule, error)
	CreateRule(ctx context.Context, r *models.Rule) error
	UpdateRule(ctx context.Context, r *models.Rule) error
	DeleteRule(ctx context.Context, id uint) error
}

// Store is everything the HTTP layer and the scheduler need.
type Store interface {
	AttendanceStore
	TriggerStore
	RecordStore
	UserStore
	PointStore
	RequestStore
	RuleStore
}

// GormStore implements Store over any gorm dialect.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the handle for health checks.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks the connection within ctx.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	default:
		return err
	}
}
