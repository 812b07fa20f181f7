package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/db"
	"github.com/gametrade/backend/internal/events"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/gametrade/backend/internal/services"
	"go.uber.org/zap"
)

// The worker runs the two passive-deadline sweeps: expiring stale
// payment attempts and auto-releasing escrow past the verification
// deadline. Sweeps are idempotent, so running alongside a second worker
// instance is safe.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)
	txnRepo := repositories.NewTransactionRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	txnService := services.NewTransactionService(pool, txnRepo, listingRepo, paymentRepo, userRepo, auditRepo, notificationRepo, publisher, cfg, log)
	paymentService := services.NewPaymentService(pool, paymentRepo, txnRepo, listingRepo, auditRepo, notificationRepo, publisher, cfg, log)

	// Tail the event streams so operators can follow settlement and
	// dispute activity from the worker logs.
	subscriber := events.NewRedisSubscriber(rdb, log)
	for _, stream := range []string{events.StreamListings, events.StreamTransactions, events.StreamDisputes} {
		stream := stream
		if err := subscriber.Subscribe(ctx, stream, func(e events.Event) {
			log.Info("event", zap.String("stream", stream), zap.String("type", e.Type), zap.Any("payload", e.Payload))
		}); err != nil {
			log.Error("event subscription failed", zap.String("stream", stream), zap.Error(err))
		}
	}

	log.Info("worker started")

	paymentTicker := time.NewTicker(1 * time.Minute)
	releaseTicker := time.NewTicker(5 * time.Minute)
	defer paymentTicker.Stop()
	defer releaseTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-paymentTicker.C:
			runPaymentExpiry(ctx, paymentService, log)
		case <-releaseTicker.C:
			runEscrowRelease(ctx, txnService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runPaymentExpiry(ctx context.Context, paymentService *services.PaymentService, log *zap.Logger) {
	expired, err := paymentService.ExpireOverduePayments(ctx)
	if err != nil {
		log.Error("payment expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		log.Info("expired stale payments", zap.Int("count", expired))
	}
}

func runEscrowRelease(ctx context.Context, txnService *services.TransactionService, log *zap.Logger) {
	released, err := txnService.AutoCompleteExpired(ctx)
	if err != nil {
		log.Error("escrow release sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		log.Info("auto-released escrow", zap.Int("count", released))
	}
}
