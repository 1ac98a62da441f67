package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"globcrm/models"
	"globcrm/utils"
)

// FeedController serves the activity feed and notifications and keeps
// websocket subscribers attached to the realtime hub.
type FeedController struct {
	db     *gorm.DB
	hub    *utils.Hub
	logger *log.Logger
}

func NewFeedController(db *gorm.DB, hub *utils.Hub, logger *log.Logger) *FeedController {
	return &FeedController{db: db, hub: hub, logger: logger}
}

// ListFeed returns the tenant's most recent feed entries
func (fc *FeedController) ListFeed(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var entries []models.FeedEntry
	err := fc.db.Where("tenant_id = ?", user.TenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch feed", err)
	}

	return c.JSON(utils.SuccessResponse(entries))
}

// ListNotifications returns the current user's notifications
func (fc *FeedController) ListNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var notifications []models.Notification
	err := fc.db.Where("tenant_id = ? AND user_id = ?", user.TenantID, user.ID).
		Order("created_at DESC").
		Limit(100).
		Find(&notifications).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notifications", err)
	}

	return c.JSON(utils.SuccessResponse(notifications))
}

// MarkNotificationRead marks one of the user's notifications as read
func (fc *FeedController) MarkNotificationRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := fc.db.Model(&models.Notification{}).
		Where("id = ? AND tenant_id = ? AND user_id = ?", c.Params("id"), user.TenantID, user.ID).
		Update("is_read", true)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notification", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// HandleFeedWS keeps a websocket subscriber registered on the hub until the
// peer goes away. Locals are populated by the JWT middleware before the
// connection is upgraded.
func (fc *FeedController) HandleFeedWS(c *websocket.Conn) {
	tenantID, ok := c.Locals("tenantID").(uint)
	if !ok {
		_ = c.Close()
		return
	}

	fc.hub.Register(tenantID, c)
	defer func() {
		fc.hub.Unregister(tenantID, c)
		_ = c.Close()
	}()

	// Drain the connection; we only push, clients do not send payloads
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
