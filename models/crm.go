package models

import (
	"strings"

	"gorm.io/gorm"
)

// Company represents a CRM company record
type Company struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Name    string `gorm:"not null" json:"name"`
	Domain  string `json:"domain"`
	Website string `json:"website"`
	Phone   string `json:"phone"`
}

// Contact represents a CRM contact record
type Contact struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Position  string `json:"position"`

	CompanyID *uint `gorm:"index" json:"company_id,omitempty"`

	// Relations
	Company *Company `json:"company,omitempty"`
}

// FindContactByEmail returns the first contact in the tenant whose email
// matches any address in the set, case-insensitively. Returns nil without
// error when no contact matches.
func FindContactByEmail(db *gorm.DB, tenantID uint, emails []string) (*Contact, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	lowered := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			lowered = append(lowered, e)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var contact Contact
	err := db.Where("tenant_id = ? AND LOWER(email) IN ?", tenantID, lowered).
		Order("id").
		First(&contact).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}
