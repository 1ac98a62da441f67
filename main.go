package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"globcrm/config"
	"globcrm/middleware"
	"globcrm/models"
	"globcrm/provider"
	"globcrm/routes"
	"globcrm/utils"
	"globcrm/worker"
)

func main() {
	logger := log.New(os.Stdout, "GLOBCRM: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: config.AppConfig.SentryDSN}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	cipher, err := utils.NewCipher(utils.PurposeMailboxTokens)
	if err != nil {
		logger.Fatalf("Failed to initialize token cipher: %v", err)
	}
	tokens := utils.NewTokenManager()

	hub := utils.NewHub()
	notifier := utils.NewNotifier(config.DB, hub)
	replyDetector := utils.NewReplyDetector(config.DB)

	newProvider := func(ctx context.Context, account *models.EmailAccount) (provider.MailProvider, error) {
		return provider.NewGmailProvider(ctx, account, cipher, tokens.OAuthConfig())
	}
	engine := worker.NewSyncEngine(config.DB, config.AppConfig.Sync, newProvider, cipher, notifier, replyDetector)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	// Initialize and start the sync worker
	syncWorker := worker.NewSyncWorker(
		config.DB,
		engine,
		time.Duration(config.AppConfig.Sync.IntervalMinutes)*time.Minute,
		time.Duration(config.AppConfig.Sync.AccountDelayMS)*time.Millisecond,
		log.New(os.Stdout, "SYNC: ", log.LstdFlags),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, routes.NewControllers(config.DB, tokens, cipher, engine, hub))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Shut down cleanly on SIGINT/SIGTERM so a running cycle can finish
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Println("Shutdown signal received")
		cancel()
		_ = app.Shutdown()
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
