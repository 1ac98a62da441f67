package models

import "gorm.io/gorm"

// MigrateDB runs the schema migration for all domain models
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&Tenant{},
		&User{},
		&Company{},
		&Contact{},
		&EmailAccount{},
		&EmailThread{},
		&EmailMessage{},
		&Notification{},
		&FeedEntry{},
		&Sequence{},
		&SequenceEnrollment{},
	)
}
