package http

import (
	"time"

	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/http/handlers"
	"github.com/gametrade/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	userHandler *handlers.UserHandler,
	listingHandler *handlers.ListingHandler,
	txnHandler *handlers.TransactionHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	notificationHandler *handlers.NotificationHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Callback-Token",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Gateway callback (token-authenticated in the service, not JWT)
	api.Post("/payments/webhook", paymentHandler.GatewayWebhook)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))
	protected.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Listings and bidding
	protected.Post("/listings", listingHandler.CreateListing)
	protected.Get("/listings/:id", listingHandler.GetListing)
	protected.Get("/listings/:id/bids", listingHandler.ListBids)
	protected.Post("/listings/:id/bids", listingHandler.PlaceBid)
	protected.Post("/listings/:id/finish", listingHandler.FinishAuction)

	// Escrow transactions
	protected.Post("/transactions", txnHandler.CreateTransaction)
	protected.Get("/transactions", txnHandler.ListTransactions)
	protected.Get("/transactions/:id", txnHandler.GetTransaction)
	protected.Post("/transactions/:id/transfer", txnHandler.TransferItem)
	protected.Post("/transactions/:id/confirm", txnHandler.ConfirmReceipt)
	protected.Post("/transactions/:id/retry-payment", txnHandler.RetryPayment)
	protected.Get("/transactions/:id/events", txnHandler.GetTransactionEvents)

	// Disputes
	protected.Post("/disputes", disputeHandler.CreateDispute)
	protected.Get("/disputes/:id", disputeHandler.GetDispute)

	// Notifications
	protected.Get("/notifications", notificationHandler.ListNotifications)
	protected.Post("/notifications/:id/read", notificationHandler.MarkRead)

	// Arbitration (admin only)
	admin := protected.Group("/admin", middleware.AdminMiddleware())
	admin.Post("/users", userHandler.ProvisionUser)
	admin.Get("/disputes", disputeHandler.ListDisputes)
	admin.Post("/disputes/:id/review", disputeHandler.MarkUnderReview)
	admin.Post("/disputes/:id/resolve", disputeHandler.ResolveDispute)
}
