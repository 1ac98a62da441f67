package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailAccount statuses. An account flips to error when a sync cycle fails
// and back to active on the next successful cycle.
const (
	AccountStatusActive = "active"
	AccountStatusError  = "error"
)

// EmailAccount represents an OAuth-connected mailbox for a user. One account
// per user per tenant; created on OAuth connect, deleted on disconnect.
type EmailAccount struct {
	gorm.Model
	TenantID uint `gorm:"not null;uniqueIndex:idx_email_accounts_tenant_user" json:"tenant_id"`
	UserID   uint `gorm:"not null;uniqueIndex:idx_email_accounts_tenant_user" json:"user_id"`

	EmailAddress string `gorm:"not null" json:"email_address"`
	Provider     string `gorm:"default:'gmail'" json:"provider"`

	// OAuth credentials, encrypted in the application layer
	AccessToken    string    `gorm:"type:text" json:"-"`
	RefreshToken   string    `gorm:"type:text" json:"-"`
	TokenIssuedAt  time.Time `json:"token_issued_at"`
	TokenExpiresAt time.Time `json:"token_expires_at"`

	// Opaque provider position marker; nil until the first full sync completes
	LastSyncCursor *string `json:"last_sync_cursor,omitempty"`

	Status       string     `gorm:"default:'active';index" json:"status"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`

	// Relations
	User User `json:"-"`
}

// Sanitize clears credential fields before the account is serialized
func (a *EmailAccount) Sanitize() {
	a.AccessToken = ""
	a.RefreshToken = ""
}

// MarkSynced records a successful sync cycle and clears any previous error
func (a *EmailAccount) MarkSynced(db *gorm.DB, now time.Time) error {
	a.Status = AccountStatusActive
	a.LastSyncAt = &now
	a.ErrorMessage = nil
	return db.Model(a).Select("status", "last_sync_at", "error_message", "last_sync_cursor", "access_token", "token_issued_at", "token_expires_at").Updates(a).Error
}

// MarkError flips the account into the error state with the captured message
func (a *EmailAccount) MarkError(db *gorm.DB, message string) error {
	a.Status = AccountStatusError
	a.ErrorMessage = &message
	return db.Model(a).Select("status", "error_message").Updates(a).Error
}
