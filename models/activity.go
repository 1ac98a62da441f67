package models

import (
	"gorm.io/gorm"
)

// Notification types dispatched by the sync engine
const (
	NotificationTypeEmailReceived = "EmailReceived"
)

// Feed entry types
const (
	FeedEntryTypeSystemEvent = "SystemEvent"
)

// Entity type tag used for email-related notifications and feed entries
const EntityTypeEmail = "Email"

// Notification represents an in-app notification for a user
type Notification struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`
	UserID   uint `gorm:"not null;index" json:"user_id"`

	Type       string `gorm:"not null" json:"type"`
	Title      string `gorm:"not null" json:"title"`
	Message    string `gorm:"type:text" json:"message"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	IsRead     bool   `gorm:"default:false" json:"is_read"`
}

// FeedEntry represents an entry in the tenant activity feed. Created entries
// are also broadcast in realtime to the owning tenant.
type FeedEntry struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Type       string `gorm:"not null" json:"type"`
	Content    string `gorm:"type:text" json:"content"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	EntityName string `json:"entity_name"`
	AuthorID   uint   `gorm:"index" json:"author_id"`
}
