package models

import (
	"gorm.io/gorm"
)

// Tenant represents an isolated CRM workspace. Every domain row carries a
// TenantID and queries are scoped to it, except for system-level maintenance
// loops (see worker package) which deliberately cross tenants.
type Tenant struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Users []User `gorm:"foreignKey:TenantID" json:"users,omitempty"`
}

// User represents a CRM user within a tenant
type User struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email        string  `gorm:"not null;index" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Name         string  `json:"name"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`
	IsAdmin      bool    `gorm:"default:false" json:"is_admin"`
	Timezone     string  `gorm:"default:'UTC'" json:"timezone"`
	AvatarURL    *string `json:"avatar_url,omitempty"`

	// Relations
	Tenant        Tenant         `json:"-"`
	EmailAccounts []EmailAccount `gorm:"foreignKey:UserID" json:"email_accounts,omitempty"`
}
