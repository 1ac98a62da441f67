package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"globcrm/models"
	"globcrm/provider"
	"globcrm/utils"
	"globcrm/worker"
)

// EmailAccountController handles the OAuth connect/disconnect lifecycle of
// mailbox accounts and the manual sync endpoint.
type EmailAccountController struct {
	db     *gorm.DB
	logger *log.Logger
	tokens *utils.TokenManager
	cipher *utils.Cipher
	engine *worker.SyncEngine
}

func NewEmailAccountController(db *gorm.DB, logger *log.Logger, tokens *utils.TokenManager, cipher *utils.Cipher, engine *worker.SyncEngine) *EmailAccountController {
	return &EmailAccountController{
		db:     db,
		logger: logger,
		tokens: tokens,
		cipher: cipher,
		engine: engine,
	}
}

// Connect starts the OAuth consent flow for the current user's mailbox
func (ac *EmailAccountController) Connect(c *fiber.Ctx) error {
	state, err := utils.GenerateSecureState()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate state token", err)
	}

	// Short-lived CSRF state cookie, validated in the callback
	cookie := new(fiber.Cookie)
	cookie.Name = "mailbox_oauth_state"
	cookie.Value = state
	cookie.Expires = time.Now().Add(10 * time.Minute)
	cookie.HTTPOnly = true
	cookie.Secure = true
	cookie.SameSite = "Lax"
	c.Cookie(cookie)

	return c.Redirect(ac.tokens.AuthorizationURL(state), fiber.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow: exchanges the code, encrypts the token
// pair, resolves the mailbox address and upserts the user's EmailAccount.
func (ac *EmailAccountController) Callback(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	state := c.Query("state")
	cookieState := c.Cookies("mailbox_oauth_state")
	if state == "" || cookieState == "" || state != cookieState {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter", nil)
	}
	c.ClearCookie("mailbox_oauth_state")

	code := c.Query("code")
	if code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code not provided", nil)
	}

	ctx := context.Background()
	pair, err := ac.tokens.ExchangeCode(ctx, code)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to exchange authorization code", err)
	}

	encAccess, err := ac.cipher.Encrypt(pair.AccessToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to protect tokens", err)
	}
	encRefresh, err := ac.cipher.Encrypt(pair.RefreshToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to protect tokens", err)
	}

	account := models.EmailAccount{
		TenantID:       user.TenantID,
		UserID:         user.ID,
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		TokenIssuedAt:  pair.IssuedAt,
		TokenExpiresAt: pair.ExpiresAt,
		Status:         models.AccountStatusActive,
	}

	// Resolve the mailbox address through the freshly authorized client
	p, err := provider.NewGmailProvider(ctx, &account, ac.cipher, ac.tokens.OAuthConfig())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create mail client", err)
	}
	address, err := p.Profile(ctx)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to resolve mailbox address", err)
	}
	account.EmailAddress = address

	// One account per user per tenant: update in place on re-connect
	var existing models.EmailAccount
	err = ac.db.Where("tenant_id = ? AND user_id = ?", user.TenantID, user.ID).First(&existing).Error
	switch {
	case err == nil:
		existing.AccessToken = account.AccessToken
		existing.RefreshToken = account.RefreshToken
		existing.TokenIssuedAt = account.TokenIssuedAt
		existing.TokenExpiresAt = account.TokenExpiresAt
		existing.Status = models.AccountStatusActive
		existing.ErrorMessage = nil
		if existing.EmailAddress != address {
			// Different mailbox: the old cursor means nothing anymore
			existing.EmailAddress = address
			existing.LastSyncCursor = nil
		}
		if err := ac.db.Save(&existing).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update account", err)
		}
		account = existing
	case err == gorm.ErrRecordNotFound:
		if err := ac.db.Create(&account).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create account", err)
		}
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Database error", err)
	}

	ac.logger.Printf("Mailbox %s connected for user %d", address, user.ID)

	account.Sanitize()
	return c.JSON(utils.SuccessResponse(account))
}

// List returns the current user's connected accounts, without credentials
func (ac *EmailAccountController) List(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var accounts []models.EmailAccount
	if err := ac.db.Where("tenant_id = ? AND user_id = ?", user.TenantID, user.ID).Find(&accounts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch accounts", err)
	}

	for i := range accounts {
		accounts[i].Sanitize()
	}
	return c.JSON(utils.SuccessResponse(accounts))
}

// Disconnect revokes the refresh token (best-effort) and deletes the
// account with its messages and threads. Disconnect always succeeds locally
// even when remote revocation fails.
func (ac *EmailAccountController) Disconnect(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var account models.EmailAccount
	err := ac.db.Where("id = ? AND tenant_id = ? AND user_id = ?", c.Params("id"), user.TenantID, user.ID).
		First(&account).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Account not found", err)
	}

	if refreshToken, derr := ac.cipher.Decrypt(account.RefreshToken); derr == nil {
		ac.tokens.Revoke(c.Context(), refreshToken)
	} else {
		ac.logger.Printf("Skipping revocation for account %d: %v", account.ID, derr)
	}

	err = ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", account.ID).Delete(&models.EmailMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", account.ID).Delete(&models.EmailThread{}).Error; err != nil {
			return err
		}
		return tx.Delete(&account).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete account", err)
	}

	return c.JSON(fiber.Map{
		"message": "Mailbox disconnected",
	})
}

// SyncNow runs one synchronous sync cycle for the account. Rate limited.
func (ac *EmailAccountController) SyncNow(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var account models.EmailAccount
	err := ac.db.Where("id = ? AND tenant_id = ? AND user_id = ?", c.Params("id"), user.TenantID, user.ID).
		First(&account).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Account not found", err)
	}

	if err := ac.engine.SyncAccount(context.Background(), &account); err != nil {
		utils.LogError("manual_sync_failed", err, map[string]interface{}{
			"account_id": account.ID,
			"tenant_id":  account.TenantID,
		})
		if merr := account.MarkError(ac.db, err.Error()); merr != nil {
			ac.logger.Printf("Failed to mark account %d as errored: %v", account.ID, merr)
		}
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Sync failed", err)
	}

	account.Sanitize()
	return c.JSON(utils.SuccessResponse(account))
}
