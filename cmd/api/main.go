package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/db"
	"github.com/gametrade/backend/internal/events"
	apphttp "github.com/gametrade/backend/internal/http"
	"github.com/gametrade/backend/internal/http/handlers"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/gametrade/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)
	txnRepo := repositories.NewTransactionRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	disputeRepo := repositories.NewDisputeRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)

	// Services
	listingService := services.NewListingService(pool, listingRepo, txnRepo, paymentRepo, userRepo, auditRepo, notificationRepo, publisher, cfg, log)
	txnService := services.NewTransactionService(pool, txnRepo, listingRepo, paymentRepo, userRepo, auditRepo, notificationRepo, publisher, cfg, log)
	paymentService := services.NewPaymentService(pool, paymentRepo, txnRepo, listingRepo, auditRepo, notificationRepo, publisher, cfg, log)
	disputeService := services.NewDisputeService(pool, disputeRepo, txnRepo, auditRepo, notificationRepo, publisher, cfg, log)

	// Handlers
	userHandler := handlers.NewUserHandler(userRepo, log)
	listingHandler := handlers.NewListingHandler(listingService, log)
	txnHandler := handlers.NewTransactionHandler(txnService, paymentService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	disputeHandler := handlers.NewDisputeHandler(disputeService, log)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, userHandler, listingHandler, txnHandler, paymentHandler, disputeHandler, notificationHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
