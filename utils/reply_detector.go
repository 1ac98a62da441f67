package utils

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"globcrm/models"
)

// ReplyDetector checks whether an inbound message is a reply from a contact
// enrolled in an active outbound sequence, and if so stops further steps
// for that enrollment.
type ReplyDetector struct {
	db *gorm.DB
}

func NewReplyDetector(db *gorm.DB) *ReplyDetector {
	return &ReplyDetector{db: db}
}

// Inspect marks matching active enrollments as replied. Messages without a
// resolved contact are ignored.
func (d *ReplyDetector) Inspect(msg *models.EmailMessage) error {
	if msg.ContactID == nil {
		return nil
	}

	var enrollments []models.SequenceEnrollment
	err := d.db.
		Joins("JOIN sequences ON sequences.id = sequence_enrollments.sequence_id").
		Where("sequence_enrollments.tenant_id = ? AND sequence_enrollments.contact_id = ?", msg.TenantID, *msg.ContactID).
		Where("sequence_enrollments.status = ? AND sequences.status = ?", models.EnrollmentStatusActive, models.SequenceStatusActive).
		Find(&enrollments).Error
	if err != nil {
		return err
	}

	repliedAt := msg.SentAt
	if repliedAt.IsZero() {
		repliedAt = time.Now().UTC()
	}

	for i := range enrollments {
		enrollments[i].Status = models.EnrollmentStatusReplied
		enrollments[i].RepliedAt = &repliedAt
		if err := d.db.Model(&enrollments[i]).
			Select("status", "replied_at").
			Updates(&enrollments[i]).Error; err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"enrollment_id": enrollments[i].ID,
			"contact_id":    *msg.ContactID,
			"message_id":    msg.ID,
		}).Info("sequence reply detected")
	}
	return nil
}
