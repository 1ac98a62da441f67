package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "globcrm/controllers"
	"globcrm/middleware"
	"globcrm/utils"
	"globcrm/worker"
)

// Controllers bundles the constructed controllers handed to route setup
type Controllers struct {
	Accounts *controller.EmailAccountController
	Inbox    *controller.InboxController
	Feed     *controller.FeedController
}

// NewControllers wires controllers with their dependencies and loggers
func NewControllers(db *gorm.DB, tokens *utils.TokenManager, cipher *utils.Cipher, engine *worker.SyncEngine, hub *utils.Hub) *Controllers {
	return &Controllers{
		Accounts: controller.NewEmailAccountController(db, log.New(os.Stdout, "ACCOUNT: ", log.LstdFlags), tokens, cipher, engine),
		Inbox:    controller.NewInboxController(db, log.New(os.Stdout, "INBOX: ", log.LstdFlags), cipher, tokens, engine),
		Feed:     controller.NewFeedController(db, hub, log.New(os.Stdout, "FEED: ", log.LstdFlags)),
	}
}

func SetupAuthRoutes(app *fiber.App) {
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)
}

func SetupAPIRoutes(app *fiber.App, ctrl *Controllers) {
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Mailbox account lifecycle
	accounts := api.Group("/email-accounts")
	accounts.Get("/connect", ctrl.Accounts.Connect)
	accounts.Get("/callback", ctrl.Accounts.Callback)
	accounts.Get("/", ctrl.Accounts.List)
	accounts.Delete("/:id", ctrl.Accounts.Disconnect)
	accounts.Post("/:id/sync", middleware.SyncRateLimiter(), ctrl.Accounts.SyncNow)

	// Synced inbox
	inbox := api.Group("/inbox")
	inbox.Get("/threads", ctrl.Inbox.ListThreads)
	inbox.Get("/threads/:id", ctrl.Inbox.GetThread)
	inbox.Post("/send", ctrl.Inbox.SendEmail)

	// Activity feed and notifications
	feed := api.Group("/feed")
	feed.Get("/", ctrl.Feed.ListFeed)
	feed.Get("/notifications", ctrl.Feed.ListNotifications)
	feed.Put("/notifications/:id/read", ctrl.Feed.MarkNotificationRead)

	// WebSocket route for realtime feed updates
	api.Get("/feed/ws", websocket.New(func(c *websocket.Conn) {
		ctrl.Feed.HandleFeedWS(c)
	}))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, ctrl *Controllers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app)
	SetupAPIRoutes(app, ctrl)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
