package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailMessage represents a single synced mailbox message. Exactly one row
// exists per (tenant, remote message id); ingestion skips already-seen ids.
type EmailMessage struct {
	gorm.Model
	TenantID  uint `gorm:"not null;uniqueIndex:idx_email_messages_tenant_remote" json:"tenant_id"`
	AccountID uint `gorm:"not null;index" json:"account_id"`
	ThreadID  uint `gorm:"not null;index" json:"thread_id"`

	RemoteID       string `gorm:"not null;uniqueIndex:idx_email_messages_tenant_remote" json:"remote_id"`
	RemoteThreadID string `gorm:"index" json:"remote_thread_id"`

	// Envelope
	Subject      string   `json:"subject"`
	FromAddress  string   `gorm:"not null" json:"from_address"`
	FromName     string   `json:"from_name"`
	ToAddresses  []string `gorm:"serializer:json" json:"to_addresses"`
	CcAddresses  []string `gorm:"serializer:json" json:"cc_addresses"`
	BccAddresses []string `gorm:"serializer:json" json:"bcc_addresses"`
	SentAt       time.Time `gorm:"not null" json:"sent_at"`

	// Content
	BodyHTML string  `gorm:"type:text" json:"body_html"`
	BodyText string  `gorm:"type:text" json:"body_text"`
	Preview  *string `json:"preview,omitempty"`

	// Flags
	HasAttachments bool `gorm:"default:false" json:"has_attachments"`
	IsInbound      bool `gorm:"default:false" json:"is_inbound"`
	IsRead         bool `gorm:"default:false" json:"is_read"`
	IsStarred      bool `gorm:"default:false" json:"is_starred"`

	// Auto-linked CRM entities
	ContactID *uint `gorm:"index" json:"contact_id,omitempty"`
	CompanyID *uint `json:"company_id,omitempty"`

	SyncedAt time.Time `json:"synced_at"`

	// Relations
	Account EmailAccount `json:"-"`
	Thread  EmailThread  `json:"-"`
	Contact *Contact     `json:"contact,omitempty"`
	Company *Company     `json:"company,omitempty"`
}

// EmailThread aggregates messages that share a remote thread id, one per
// tenant. The subject is fixed to the first message's subject; contact and
// company links are first-writer-wins and never cleared by later messages.
type EmailThread struct {
	gorm.Model
	TenantID  uint `gorm:"not null;uniqueIndex:idx_email_threads_tenant_remote" json:"tenant_id"`
	AccountID uint `gorm:"not null;index" json:"account_id"`

	RemoteID string `gorm:"not null;uniqueIndex:idx_email_threads_tenant_remote" json:"remote_id"`

	Subject       string    `json:"subject"`
	LastSnippet   string    `gorm:"type:text" json:"last_snippet"`
	MessageCount  int       `gorm:"default:0" json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`

	ContactID *uint `gorm:"index" json:"contact_id,omitempty"`
	CompanyID *uint `json:"company_id,omitempty"`

	// Relations
	Messages []EmailMessage `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`
	Contact  *Contact       `json:"contact,omitempty"`
	Company  *Company       `json:"company,omitempty"`
}
