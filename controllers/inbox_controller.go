package controller

import (
	"bytes"
	"context"
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"globcrm/models"
	"globcrm/provider"
	"globcrm/utils"
	"globcrm/worker"
)

// InboxController serves synced threads and messages and handles the
// outbound send path.
type InboxController struct {
	db     *gorm.DB
	logger *log.Logger
	cipher *utils.Cipher
	tokens *utils.TokenManager
	engine *worker.SyncEngine
}

func NewInboxController(db *gorm.DB, logger *log.Logger, cipher *utils.Cipher, tokens *utils.TokenManager, engine *worker.SyncEngine) *InboxController {
	return &InboxController{
		db:     db,
		logger: logger,
		cipher: cipher,
		tokens: tokens,
		engine: engine,
	}
}

// SendEmailRequest is the payload of POST /inbox/send
type SendEmailRequest struct {
	AccountID uint     `json:"account_id" validate:"required"`
	To        []string `json:"to" validate:"required,min=1"`
	Cc        []string `json:"cc"`
	Subject   string   `json:"subject" validate:"required,max=988"`
	BodyText  string   `json:"body_text" validate:"required"`
	BodyHTML  string   `json:"body_html"`
}

// ListThreads returns the tenant's threads, newest activity first
func (ic *InboxController) ListThreads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 25)
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	var threads []models.EmailThread
	query := ic.db.Where("tenant_id = ?", user.TenantID)
	if contactID := c.QueryInt("contact_id", 0); contactID > 0 {
		query = query.Where("contact_id = ?", contactID)
	}

	var total int64
	if err := query.Model(&models.EmailThread{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count threads", err)
	}
	err := query.Order("last_message_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&threads).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch threads", err)
	}

	return c.JSON(fiber.Map{
		"data":     threads,
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

// GetThread returns one thread with its messages in chronological order
func (ic *InboxController) GetThread(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var thread models.EmailThread
	err := ic.db.Where("id = ? AND tenant_id = ?", c.Params("id"), user.TenantID).First(&thread).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Thread not found", err)
	}

	var messages []models.EmailMessage
	err = ic.db.Where("thread_id = ? AND tenant_id = ?", thread.ID, user.TenantID).
		Order("sent_at ASC").
		Find(&messages).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch messages", err)
	}

	return c.JSON(fiber.Map{
		"thread":   thread,
		"messages": messages,
	})
}

// SendEmail composes a MIME message, sends it through the account's mailbox
// and records the sent copy so it shows up in its thread immediately.
func (ic *InboxController) SendEmail(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req SendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	for _, addr := range append(append([]string{}, req.To...), req.Cc...) {
		if err := checkmail.ValidateFormat(addr); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid recipient address: "+addr, nil)
		}
	}

	var account models.EmailAccount
	err := ic.db.Where("id = ? AND tenant_id = ? AND user_id = ?", req.AccountID, user.TenantID, user.ID).
		First(&account).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Account not found", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", account.EmailAddress)
	msg.SetHeader("To", req.To...)
	if len(req.Cc) > 0 {
		msg.SetHeader("Cc", req.Cc...)
	}
	msg.SetHeader("Subject", req.Subject)
	msg.SetBody("text/plain", req.BodyText)
	if req.BodyHTML != "" {
		msg.AddAlternative("text/html", req.BodyHTML)
	}

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build message", err)
	}

	ctx := context.Background()
	p, err := provider.NewGmailProvider(ctx, &account, ic.cipher, ic.tokens.OAuthConfig())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create mail client", err)
	}
	sent, err := p.SendMessage(ctx, raw.Bytes())
	if err != nil {
		utils.LogError("send_email_failed", err, map[string]interface{}{
			"account_id": account.ID,
			"tenant_id":  account.TenantID,
		})
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send email", err)
	}

	stored, err := ic.engine.IngestOutbound(ctx, &account, sent)
	if err != nil {
		// The message is already out; the next sync cycle will pick it up
		ic.logger.Printf("Failed to record sent message %s: %v", sent.ID, err)
		return c.JSON(fiber.Map{
			"message": "Email sent",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(stored))
}
