package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"globcrm/config"
	"globcrm/models"
	"globcrm/provider"
	"globcrm/utils"
)

// ProviderFactory builds an authenticated mail provider for an account.
// One provider instance per call; never cached across accounts.
type ProviderFactory func(ctx context.Context, account *models.EmailAccount) (provider.MailProvider, error)

// SyncEngine synchronizes a single mailbox account: it selects full or
// incremental mode from the stored cursor, pages through the remote API,
// converts remote messages into local records, and triggers downstream
// effects for newly ingested inbound messages.
type SyncEngine struct {
	db            *gorm.DB
	cfg           config.SyncConfig
	newProvider   ProviderFactory
	cipher        *utils.Cipher
	notifier      *utils.Notifier
	replyDetector *utils.ReplyDetector
}

func NewSyncEngine(db *gorm.DB, cfg config.SyncConfig, factory ProviderFactory, cipher *utils.Cipher, notifier *utils.Notifier, replyDetector *utils.ReplyDetector) *SyncEngine {
	return &SyncEngine{
		db:            db,
		cfg:           cfg,
		newProvider:   factory,
		cipher:        cipher,
		notifier:      notifier,
		replyDetector: replyDetector,
	}
}

// SyncAccount runs one sync cycle for the account. Any returned error is
// per-account fatal for this cycle; the orchestrator records it on the
// account. Already-ingested messages are skipped, so a cycle aborted midway
// is safe to retry whole.
func (e *SyncEngine) SyncAccount(ctx context.Context, account *models.EmailAccount) error {
	p, err := e.newProvider(ctx, account)
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"tenant_id":  account.TenantID,
		"mailbox":    account.EmailAddress,
	})

	if account.LastSyncCursor == nil || *account.LastSyncCursor == "" {
		log.Info("starting full sync")
		if err := e.fullSync(ctx, p, account); err != nil {
			return err
		}
	} else {
		err := e.incrementalSync(ctx, p, account)
		if errors.Is(err, provider.ErrCursorExpired) {
			// The provider garbage-collected our position. Self-heal by
			// dropping the cursor and re-running a full sync in its place.
			log.Warn("sync cursor expired, falling back to full sync")
			account.LastSyncCursor = nil
			err = e.fullSync(ctx, p, account)
		}
		if err != nil {
			return err
		}
	}

	e.persistRefreshedToken(p, account, log)

	return account.MarkSynced(e.db, time.Now().UTC())
}

// fullSync queries a date window of messages (newest initialSyncDays),
// ingests up to maxMessagesPerSync of them, then records the provider's
// current global position as the account cursor.
func (e *SyncEngine) fullSync(ctx context.Context, p provider.MailProvider, account *models.EmailAccount) error {
	now := time.Now().UTC()
	q := provider.ListQuery{
		After:      now.AddDate(0, 0, -e.cfg.InitialSyncDays),
		Before:     now,
		MaxResults: 100,
	}

	processed := 0
	for {
		page, err := p.ListMessages(ctx, q)
		if err != nil {
			return err
		}

		for _, ref := range page.Messages {
			if err := ctx.Err(); err != nil {
				return err
			}
			if processed >= e.cfg.MaxMessagesPerSync {
				break
			}
			if _, err := e.ingestRemote(ctx, p, account, ref); err != nil {
				return err
			}
			processed++
		}

		if page.NextPageToken == "" || processed >= e.cfg.MaxMessagesPerSync {
			break
		}
		q.PageToken = page.NextPageToken
	}

	cursor, err := p.CurrentCursor(ctx)
	if err != nil {
		return err
	}
	account.LastSyncCursor = &cursor
	return nil
}

// incrementalSync pages the provider's delta endpoint from the stored
// cursor, ingesting every newly added message, and advances the cursor to
// the highest position seen. ErrCursorExpired propagates to the caller.
func (e *SyncEngine) incrementalSync(ctx context.Context, p provider.MailProvider, account *models.EmailAccount) error {
	cursor := *account.LastSyncCursor
	newCursor := cursor
	pageToken := ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.ListHistorySince(ctx, cursor, pageToken)
		if err != nil {
			return err
		}

		for _, ref := range page.Added {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := e.ingestRemote(ctx, p, account, ref); err != nil {
				return err
			}
		}

		if page.Cursor != "" {
			newCursor = page.Cursor
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	account.LastSyncCursor = &newCursor
	return nil
}

// ingestRemote fetches and ingests one remote message. Returns false when
// the message was already present (dedup on tenant + remote id).
func (e *SyncEngine) ingestRemote(ctx context.Context, p provider.MailProvider, account *models.EmailAccount, ref provider.MessageRef) (bool, error) {
	var count int64
	if err := e.db.Model(&models.EmailMessage{}).
		Where("tenant_id = ? AND remote_id = ?", account.TenantID, ref.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	m, err := p.GetMessage(ctx, ref.ID)
	if err != nil {
		return false, err
	}

	msg, err := e.buildMessage(account, m)
	if err != nil {
		return false, err
	}

	if err := e.persistMessage(account, msg, m.Snippet); err != nil {
		return false, err
	}

	if msg.IsInbound {
		e.dispatchSideEffects(account, msg)
	}
	return true, nil
}

// IngestOutbound records a message the CRM just sent on the user's behalf.
// It follows the same entity-construction rules as inbound ingestion but is
// always outbound and read, and triggers no downstream effects.
func (e *SyncEngine) IngestOutbound(ctx context.Context, account *models.EmailAccount, m *provider.Message) (*models.EmailMessage, error) {
	var count int64
	if err := e.db.Model(&models.EmailMessage{}).
		Where("tenant_id = ? AND remote_id = ?", account.TenantID, m.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		var existing models.EmailMessage
		err := e.db.Where("tenant_id = ? AND remote_id = ?", account.TenantID, m.ID).First(&existing).Error
		return &existing, err
	}

	msg, err := e.buildMessage(account, m)
	if err != nil {
		return nil, err
	}
	msg.IsInbound = false
	msg.IsRead = true

	if err := e.persistMessage(account, msg, m.Snippet); err != nil {
		return nil, err
	}
	return msg, nil
}

// buildMessage converts a fetched remote message into an EmailMessage,
// including flag derivation and CRM auto-linking. The returned record has no
// thread assigned yet; persistMessage sets it.
func (e *SyncEngine) buildMessage(account *models.EmailAccount, m *provider.Message) (*models.EmailMessage, error) {
	fromAddr, fromName := parseAddress(headerValue(m, "From"))
	toAddrs := splitAddressList(headerValue(m, "To"))
	ccAddrs := splitAddressList(headerValue(m, "Cc"))
	bccAddrs := splitAddressList(headerValue(m, "Bcc"))

	htmlBody, textBody, err := extractBodies(m.Payload)
	if err != nil {
		return nil, err
	}

	msg := &models.EmailMessage{
		TenantID:       account.TenantID,
		AccountID:      account.ID,
		RemoteID:       m.ID,
		RemoteThreadID: m.ThreadID,
		Subject:        headerValue(m, "Subject"),
		FromAddress:    fromAddr,
		FromName:       fromName,
		ToAddresses:    toAddrs,
		CcAddresses:    ccAddrs,
		BccAddresses:   bccAddrs,
		SentAt:         parseSentAt(m),
		BodyHTML:       htmlBody,
		BodyText:       textBody,
		Preview:        buildPreview(textBody, htmlBody),
		HasAttachments: hasAttachments(m.Payload),
		IsInbound:      !strings.EqualFold(fromAddr, account.EmailAddress),
		IsRead:         !containsLabel(m.LabelIDs, labelUnread),
		IsStarred:      containsLabel(m.LabelIDs, labelStarred),
		SyncedAt:       time.Now().UTC(),
	}

	// From + To + Cc participate in linking; Bcc does not
	participants := make([]string, 0, 1+len(toAddrs)+len(ccAddrs))
	participants = append(participants, fromAddr)
	participants = append(participants, toAddrs...)
	participants = append(participants, ccAddrs...)

	contact, err := models.FindContactByEmail(e.db, account.TenantID, participants)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		msg.ContactID = &contact.ID
		if contact.CompanyID != nil {
			msg.CompanyID = contact.CompanyID
		}
	}

	return msg, nil
}

// persistMessage upserts the thread and inserts the message inside one
// transaction. Thread subject is fixed at creation; snippet, count and
// lastMessageAt move with every message; contact/company links are
// first-writer-wins.
func (e *SyncEngine) persistMessage(account *models.EmailAccount, msg *models.EmailMessage, snippet string) error {
	if snippet == "" && msg.Preview != nil {
		snippet = *msg.Preview
	}

	return e.db.Transaction(func(tx *gorm.DB) error {
		var thread models.EmailThread
		err := tx.Where("tenant_id = ? AND remote_id = ?", account.TenantID, msg.RemoteThreadID).
			First(&thread).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			thread = models.EmailThread{
				TenantID:  account.TenantID,
				AccountID: account.ID,
				RemoteID:  msg.RemoteThreadID,
				Subject:   msg.Subject,
			}
		} else if err != nil {
			return err
		}

		thread.LastSnippet = snippet
		thread.LastMessageAt = msg.SentAt
		thread.MessageCount++
		if thread.ContactID == nil && msg.ContactID != nil {
			thread.ContactID = msg.ContactID
		}
		if thread.CompanyID == nil && msg.CompanyID != nil {
			thread.CompanyID = msg.CompanyID
		}

		if err := tx.Save(&thread).Error; err != nil {
			return err
		}

		msg.ThreadID = thread.ID
		return tx.Create(msg).Error
	})
}

// dispatchSideEffects notifies downstream consumers about a newly ingested
// inbound message. Every failure here is logged and swallowed: collaborator
// errors never abort sync.
func (e *SyncEngine) dispatchSideEffects(account *models.EmailAccount, msg *models.EmailMessage) {
	logCtx := map[string]interface{}{
		"account_id": account.ID,
		"tenant_id":  account.TenantID,
		"message_id": msg.ID,
	}

	if e.replyDetector != nil {
		if err := e.replyDetector.Inspect(msg); err != nil {
			utils.LogError("reply_detection_failed", err, logCtx)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyEmailReceived(account, msg); err != nil {
			utils.LogError("notification_dispatch_failed", err, logCtx)
		}
		if err := e.notifier.WriteEmailFeedEntry(account, msg); err != nil {
			utils.LogError("feed_write_failed", err, logCtx)
		}
	}
}

// persistRefreshedToken writes the SDK-refreshed access token back onto the
// account when it changed, so the stored token does not stay expired between
// cycles. Best-effort: the refresh flow itself already succeeded.
func (e *SyncEngine) persistRefreshedToken(p provider.MailProvider, account *models.EmailAccount, log *logrus.Entry) {
	tp, ok := p.(interface{ CurrentToken() (*oauth2.Token, error) })
	if !ok {
		return
	}

	token, err := tp.CurrentToken()
	if err != nil || token.AccessToken == "" {
		return
	}
	if !token.Expiry.After(account.TokenExpiresAt) {
		return
	}

	encrypted, err := e.cipher.Encrypt(token.AccessToken)
	if err != nil {
		log.WithError(err).Warn("failed to re-encrypt refreshed access token")
		return
	}
	account.AccessToken = encrypted
	account.TokenIssuedAt = time.Now().UTC()
	account.TokenExpiresAt = token.Expiry
}
