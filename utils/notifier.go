package utils

import (
	"fmt"

	"gorm.io/gorm"

	"globcrm/models"
)

// Notifier dispatches in-app notifications and activity feed entries for
// newly ingested inbound emails. Failures here are the caller's to log;
// they must never abort a sync cycle.
type Notifier struct {
	db  *gorm.DB
	hub *Hub
}

func NewNotifier(db *gorm.DB, hub *Hub) *Notifier {
	return &Notifier{db: db, hub: hub}
}

// NotifyEmailReceived creates an in-app notification for the account owner
func (n *Notifier) NotifyEmailReceived(account *models.EmailAccount, msg *models.EmailMessage) error {
	sender := msg.FromName
	if sender == "" {
		sender = msg.FromAddress
	}

	notification := models.Notification{
		TenantID:   account.TenantID,
		UserID:     account.UserID,
		Type:       models.NotificationTypeEmailReceived,
		Title:      "New email received",
		Message:    fmt.Sprintf("%s: %s", sender, msg.Subject),
		EntityType: models.EntityTypeEmail,
		EntityID:   msg.ID,
	}
	return n.db.Create(&notification).Error
}

// WriteEmailFeedEntry records the email in the tenant activity feed and
// broadcasts the created entry to the tenant in realtime.
func (n *Notifier) WriteEmailFeedEntry(account *models.EmailAccount, msg *models.EmailMessage) error {
	entry := models.FeedEntry{
		TenantID:   account.TenantID,
		Type:       models.FeedEntryTypeSystemEvent,
		Content:    fmt.Sprintf("Email received from %s", msg.FromAddress),
		EntityType: models.EntityTypeEmail,
		EntityID:   msg.ID,
		EntityName: msg.Subject,
		AuthorID:   account.UserID,
	}
	if err := n.db.Create(&entry).Error; err != nil {
		return err
	}

	if n.hub != nil {
		n.hub.Broadcast(account.TenantID, entry)
	}
	return nil
}
