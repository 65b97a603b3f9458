package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attendance is a recurring check-in campaign spanning an inclusive date range.
// Dates are stored as YYYY-MM-DD in the configured timezone.
type Attendance struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	Name          string                      `gorm:"size:128;not null" json:"name"`
	Description   string                      `gorm:"type:text" json:"description"`
	DateStart     string                      `gorm:"size:10;index;not null" json:"dateStart"`
	DateEnd       string                      `gorm:"size:10;index;not null" json:"dateEnd"`
	LocationName  string                      `gorm:"size:255;not null" json:"locationName"`
	Latitude      float64                     `gorm:"not null" json:"latitude"`
	Longitude     float64                     `gorm:"not null" json:"longitude"`
	Radius        float64                     `gorm:"not null" json:"radius"`
	PenaltyPoints int                         `gorm:"not null" json:"penaltyPoints"`
	TargetGrades  datatypes.JSONSlice[string] `json:"targetGrades"`
	TargetUserIDs datatypes.JSONSlice[uint]   `gorm:"column:target_user_ids" json:"targetUserIds"`
	CreatedBy     uint                        `gorm:"index" json:"createdBy"`
	Completed     bool                        `gorm:"default:false" json:"completed"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

// Trigger states. A trigger only ever moves forward through this list.
const (
	TriggerScheduled = "scheduled"
	TriggerNotified  = "notified"
	// TriggerClosing means the check-in window is shut and penalties are being applied.
	TriggerClosing   = "closing"
	TriggerCompleted = "completed"
)

// AttendanceTrigger is one concrete daily instance of a campaign's check-in window.
type AttendanceTrigger struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AttendanceID uint      `gorm:"not null;uniqueIndex:idx_trigger_attendance_date" json:"attendanceId"`
	TriggerDate  string    `gorm:"size:10;not null;uniqueIndex:idx_trigger_attendance_date;index:idx_trigger_due" json:"triggerDate"`
	TriggerTime  string    `gorm:"size:8;not null" json:"triggerTime"`
	State        string    `gorm:"size:16;not null;default:scheduled;index:idx_trigger_due" json:"state"`
	IsManual     bool      `gorm:"default:false" json:"isManual"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NotificationSent reports whether the check-in alert went out.
func (t AttendanceTrigger) NotificationSent() bool {
	return t.State == TriggerNotified || t.State == TriggerClosing || t.State == TriggerCompleted
}

// IsCompleted reports whether penalties have been settled.
func (t AttendanceTrigger) IsCompleted() bool {
	return t.State == TriggerCompleted
}

// Open reports whether check-ins are still accepted.
func (t AttendanceTrigger) Open() bool {
	return t.State == TriggerScheduled || t.State == TriggerNotified
}

// AttendanceRecord is a successful check-in. At most one per (trigger, user).
type AttendanceRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TriggerID uint      `gorm:"not null;uniqueIndex:idx_record_trigger_user" json:"triggerId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_record_trigger_user;index" json:"userId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SignedAt  time.Time `json:"signedAt"`
}
