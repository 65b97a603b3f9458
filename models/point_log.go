package models

import "time"

// PointLog is the append-only ledger behind User.Points.
// Automated penalties carry TriggerID so each (trigger, user) pair is charged once;
// manual adjustments leave it NULL and are unconstrained.
type PointLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:idx_point_log_trigger_user,priority:2" json:"userId"`
	Points    int       `gorm:"not null" json:"points"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedBy uint      `gorm:"not null" json:"createdBy"`
	TriggerID *uint     `gorm:"uniqueIndex:idx_point_log_trigger_user,priority:1" json:"triggerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Point request states. A request is resolved exactly once.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// PointRequest is a member's appeal for a point change. Approval moves the balance
// through a PointLog written in the same transaction.
type PointRequest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"userId"`
	Points       int        `gorm:"not null" json:"points"`
	Reason       string     `gorm:"type:text;not null" json:"reason"`
	Status       string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	AdminComment string     `gorm:"size:255" json:"adminComment"`
	RespondedBy  *uint      `json:"respondedBy,omitempty"`
	RespondedAt  *time.Time `json:"respondedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Rule is a named point award or deduction administrators apply by hand.
type Rule struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Points      int       `gorm:"not null" json:"points"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// All lists every model the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Rule{},
		&PointLog{},
		&PointRequest{},
		&Attendance{},
		&AttendanceTrigger{},
		&AttendanceRecord{},
	}
}
