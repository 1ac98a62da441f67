package models

import (
	"time"

	"gorm.io/gorm"
)

// Sequence statuses
const (
	SequenceStatusDraft  = "draft"
	SequenceStatusActive = "active"
	SequenceStatusPaused = "paused"
)

// Enrollment statuses
const (
	EnrollmentStatusActive  = "active"
	EnrollmentStatusReplied = "replied"
	EnrollmentStatusDone    = "done"
)

// Sequence represents an automated outbound email sequence
type Sequence struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`
	OwnerID  uint `gorm:"not null;index" json:"owner_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft'" json:"status"`

	SendInterval int `gorm:"default:2" json:"send_interval"` // Days between emails

	// Relations
	Enrollments []SequenceEnrollment `gorm:"foreignKey:SequenceID" json:"enrollments,omitempty"`
}

// SequenceEnrollment tracks a contact progressing through a sequence. A reply
// from the contact stops further steps for that enrollment.
type SequenceEnrollment struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`

	Status      string     `gorm:"default:'active'" json:"status"`
	CurrentStep int        `gorm:"default:0" json:"current_step"`
	LastSentAt  *time.Time `json:"last_sent_at,omitempty"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`

	// Relations
	Sequence Sequence `json:"-"`
	Contact  Contact  `json:"-"`
}
