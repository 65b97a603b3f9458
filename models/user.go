package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a lab member. Passwords are stored as bcrypt hashes only.
// Grade is the cohort tag attendance campaigns target (e.g. "2024").
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Name         string         `gorm:"size:64" json:"name"`
	StudentID    string         `gorm:"size:32" json:"studentId"`
	ClassName    string         `gorm:"size:64" json:"className"`
	Grade        string         `gorm:"size:16;index" json:"grade"`
	Email        string         `gorm:"size:255" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	IsAdmin      bool           `gorm:"default:false" json:"isAdmin"`
	Points       int            `gorm:"default:0" json:"points"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
