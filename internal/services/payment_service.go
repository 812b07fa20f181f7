package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/events"
	"github.com/gametrade/backend/internal/models"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// WebhookPayload is the gateway's callback body. id is the gateway's
// charge reference (our external_gateway_id), external_id echoes our
// transaction id.
type WebhookPayload struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"external_id"`
	Status        string     `json:"status"`
	PaidAmount    *int64     `json:"paid_amount,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// WebhookOutcome tells the handler (and the logs) what a delivery did.
type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
	OutcomeNotFound  WebhookOutcome = "not_found"
)

type PaymentService struct {
	pool      *pgxpool.Pool
	payments  *repositories.PaymentRepo
	txns      *repositories.TransactionRepo
	listings  *repositories.ListingRepo
	audit     *repositories.AuditRepo
	notify    *repositories.NotificationRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewPaymentService(
	pool *pgxpool.Pool,
	payments *repositories.PaymentRepo,
	txns *repositories.TransactionRepo,
	listings *repositories.ListingRepo,
	audit *repositories.AuditRepo,
	notify *repositories.NotificationRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		pool:      pool,
		payments:  payments,
		txns:      txns,
		listings:  listings,
		audit:     audit,
		notify:    notify,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// tokenMatches compares the callback token in constant time.
func tokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// gatewayEvent is the internal action a gateway status maps to.
type gatewayEvent int

const (
	gatewayEventNone gatewayEvent = iota
	gatewayEventPaid
	gatewayEventExpired
)

// classifyGatewayStatus folds the gateway vocabulary into the two
// transitions we apply. PENDING and unknown statuses map to none so
// gateway schema additions never cause retry storms.
func classifyGatewayStatus(status string) gatewayEvent {
	switch status {
	case models.GatewayStatusPaid, models.GatewayStatusSettled:
		return gatewayEventPaid
	case models.GatewayStatusExpired:
		return gatewayEventExpired
	default:
		return gatewayEventNone
	}
}

// paidTransition decides what a PAID delivery does to a payment, keyed
// off the status read inside the same transaction as the prospective
// write. Replays land on an already-paid row and resolve to a no-op.
func paidTransition(paymentStatus string) (WebhookOutcome, bool) {
	switch paymentStatus {
	case models.PaymentStatusPending:
		return OutcomeApplied, true
	case models.PaymentStatusPaid:
		return OutcomeDuplicate, false
	default:
		return OutcomeIgnored, false
	}
}

// lastLiveAttempt reports whether retiring a payment left its
// transaction with no pending attempt, which cancels the transaction
// and releases the listing reservation.
func lastLiveAttempt(pendingSiblings int) bool {
	return pendingSiblings == 0
}

// HandleWebhook reconciles one gateway notification with internal
// state. Delivery is at-least-once: replays and duplicates resolve to
// no-ops because every write is conditional on the prior status and
// runs in a single transaction.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload WebhookPayload, callbackToken string) (WebhookOutcome, error) {
	if !tokenMatches(callbackToken, s.cfg.GatewayCallbackToken) {
		// Audit the attempt for security monitoring, then reject with
		// no other side effect.
		_ = s.audit.Log(ctx, s.pool, models.AuditLog{
			ActorType:  "gateway",
			Action:     "webhook_signature_rejected",
			EntityType: "payment",
			Meta:       map[string]any{"gateway_id": payload.ID, "status": payload.Status},
		})
		return OutcomeIgnored, apperr.Signature("callback token mismatch")
	}

	switch classifyGatewayStatus(payload.Status) {
	case gatewayEventPaid:
		return s.applyPaid(ctx, payload)
	case gatewayEventExpired:
		return s.applyExpired(ctx, payload)
	default:
		return OutcomeIgnored, nil
	}
}

// lookupPayment resolves the event to a payment by gateway id, falling
// back to our transaction reference.
func (s *PaymentService) lookupPayment(ctx context.Context, q repositories.Querier, payload WebhookPayload) (*models.Payment, error) {
	if payload.ID != "" {
		p, err := s.payments.GetByExternalID(ctx, q, payload.ID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repositories.ErrPaymentNotFound) {
			return nil, err
		}
	}
	if payload.ExternalID != "" {
		if txnID, err := uuid.Parse(payload.ExternalID); err == nil {
			p, err := s.payments.GetLatestByTransactionID(ctx, q, txnID)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, repositories.ErrPaymentNotFound) {
				return nil, err
			}
		}
	}
	return nil, repositories.ErrPaymentNotFound
}

func (s *PaymentService) applyPaid(ctx context.Context, payload WebhookPayload) (WebhookOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	payment, err := s.lookupPayment(ctx, tx, payload)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentNotFound) {
			// Acknowledged no-op: erroring would only provoke retries
			// for an event we can never match.
			return OutcomeNotFound, nil
		}
		return OutcomeIgnored, apperr.Internal(err, "lookup payment")
	}

	outcome, apply := paidTransition(payment.Status)
	if !apply {
		return outcome, nil
	}

	paidAt := time.Now()
	if payload.PaidAt != nil {
		paidAt = *payload.PaidAt
	}

	swapped, err := s.payments.MarkPaid(ctx, tx, payment.ID, payload.PaymentMethod, paidAt)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "mark payment paid")
	}
	if !swapped {
		// Lost to a near-simultaneous duplicate delivery.
		return OutcomeDuplicate, nil
	}

	moved, err := s.txns.CompareAndSetStatus(ctx, tx, payment.TransactionID, models.TxStatusPendingPayment, models.TxStatusPaid)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "transition transaction")
	}
	if !moved {
		// The transaction left PENDING_PAYMENT before the money landed
		// (e.g. cancelled by the expiry sweep in the same instant).
		// Keep internal state untouched and record the anomaly.
		_ = tx.Rollback(ctx)
		_ = s.audit.Log(ctx, s.pool, models.AuditLog{
			ActorType:  "gateway",
			Action:     "payment_paid_conflict",
			EntityType: "payment",
			EntityID:   &payment.ID,
			Meta:       map[string]any{"gateway_id": payload.ID, "transaction_id": payment.TransactionID.String()},
		})
		s.log.Warn("paid webhook for non-pending transaction",
			zap.String("payment_id", payment.ID.String()),
			zap.String("transaction_id", payment.TransactionID.String()),
		)
		return OutcomeIgnored, nil
	}

	txn, err := s.txns.GetByID(ctx, tx, payment.TransactionID)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "load transaction")
	}

	// Fixed-price listings are only reserved now, on confirmed payment.
	// Auction listings were already SOLD at settlement, which makes the
	// swap a harmless no-op there.
	if _, err := s.listings.CompareAndSetStatus(ctx, tx, txn.ListingID, models.ListingStatusActive, models.ListingStatusSold); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "mark listing sold")
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorType:  "gateway",
		Action:     "payment_confirmed",
		EntityType: "payment",
		EntityID:   &payment.ID,
		OldValue:   strPtr(models.PaymentStatusPending),
		NewValue:   strPtr(models.PaymentStatusPaid),
		Meta:       map[string]any{"gateway_id": payload.ID, "transaction_id": txn.ID.String()},
	}); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "audit payment")
	}

	buyerNote := &models.Notification{
		UserID:     txn.BuyerUserID,
		Kind:       models.NotifyPaymentConfirmed,
		Title:      "Payment confirmed",
		Body:       "Your payment of " + formatAmount(txn.Amount) + " is held in escrow until you receive the item",
		EntityType: strPtr("transaction"),
		EntityID:   &txn.ID,
	}
	sellerNote := &models.Notification{
		UserID:     txn.SellerUserID,
		Kind:       models.NotifyPaymentConfirmed,
		Title:      "Buyer has paid",
		Body:       "Payment received in escrow, transfer the item to the buyer",
		EntityType: strPtr("transaction"),
		EntityID:   &txn.ID,
	}
	if err := s.notify.Create(ctx, tx, buyerNote); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "notify buyer")
	}
	if err := s.notify.Create(ctx, tx, sellerNote); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "notify seller")
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "commit reconciliation")
	}

	_ = s.publisher.Publish(ctx, events.StreamTransactions, events.Event{
		Type: events.EventPaymentReceived,
		Payload: map[string]any{
			"transaction_id": txn.ID.String(),
			"payment_id":     payment.ID.String(),
			"amount":         txn.Amount,
		},
	})
	return OutcomeApplied, nil
}

func (s *PaymentService) applyExpired(ctx context.Context, payload WebhookPayload) (WebhookOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	payment, err := s.lookupPayment(ctx, tx, payload)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentNotFound) {
			return OutcomeNotFound, nil
		}
		return OutcomeIgnored, apperr.Internal(err, "lookup payment")
	}

	outcome, err := s.expirePaymentTx(ctx, tx, payment, "gateway")
	if err != nil {
		return OutcomeIgnored, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "commit expiry")
	}
	return outcome, nil
}

// expirePaymentTx marks one payment attempt expired and, when it was
// the last live attempt, cancels the transaction and releases the
// listing reservation. Runs inside the caller's tx.
func (s *PaymentService) expirePaymentTx(ctx context.Context, tx repositories.Querier, payment *models.Payment, actorType string) (WebhookOutcome, error) {
	swapped, err := s.payments.MarkExpired(ctx, tx, payment.ID)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "mark payment expired")
	}
	if !swapped {
		return OutcomeDuplicate, nil
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorType:  actorType,
		Action:     "payment_expired",
		EntityType: "payment",
		EntityID:   &payment.ID,
		OldValue:   strPtr(models.PaymentStatusPending),
		NewValue:   strPtr(models.PaymentStatusExpired),
		Meta:       map[string]any{"transaction_id": payment.TransactionID.String()},
	}); err != nil {
		return OutcomeIgnored, apperr.Internal(err, "audit expiry")
	}

	pending, err := s.payments.CountPendingForTransaction(ctx, tx, payment.TransactionID)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "count pending payments")
	}
	if !lastLiveAttempt(pending) {
		// A sibling attempt is still live, the transaction stays open.
		return OutcomeApplied, nil
	}

	cancelled, err := s.txns.CompareAndSetStatus(ctx, tx, payment.TransactionID, models.TxStatusPendingPayment, models.TxStatusCancelled)
	if err != nil {
		return OutcomeIgnored, apperr.Internal(err, "cancel transaction")
	}
	if cancelled {
		txn, err := s.txns.GetByID(ctx, tx, payment.TransactionID)
		if err != nil {
			return OutcomeIgnored, apperr.Internal(err, "load transaction")
		}
		if _, err := s.listings.CompareAndSetStatus(ctx, tx, txn.ListingID, models.ListingStatusSold, models.ListingStatusActive); err != nil {
			return OutcomeIgnored, apperr.Internal(err, "release listing")
		}
		if err := s.notify.Create(ctx, tx, &models.Notification{
			UserID:     txn.BuyerUserID,
			Kind:       models.NotifyPaymentExpired,
			Title:      "Payment expired",
			Body:       "Your payment window elapsed and the purchase was cancelled",
			EntityType: strPtr("transaction"),
			EntityID:   &txn.ID,
		}); err != nil {
			return OutcomeIgnored, apperr.Internal(err, "notify buyer")
		}
	}
	return OutcomeApplied, nil
}

// RetryPayment opens a fresh charge attempt after earlier ones expired,
// while the transaction is still awaiting payment.
func (s *PaymentService) RetryPayment(ctx context.Context, txnID uuid.UUID, caller models.Caller) (*models.Payment, error) {
	txn, err := s.txns.GetByID(ctx, s.pool, txnID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperr.NotFound("transaction not found")
		}
		return nil, apperr.Internal(err, "load transaction")
	}
	if txn.BuyerUserID != caller.ID {
		return nil, apperr.Forbidden("only the buyer can retry payment")
	}
	if txn.Status != models.TxStatusPendingPayment {
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "transaction is not awaiting payment")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	pending, err := s.payments.CountPendingForTransaction(ctx, tx, txnID)
	if err != nil {
		return nil, apperr.Internal(err, "count pending payments")
	}
	if pending > 0 {
		return nil, apperr.Conflict(apperr.ReasonListingReserved, "a payment attempt is already pending")
	}

	payment := &models.Payment{
		TransactionID:     txnID,
		ExternalGatewayID: newChargeRef(),
		Amount:            txn.Amount,
		Status:            models.PaymentStatusPending,
		ExpiresAt:         time.Now().Add(s.cfg.PaymentTimeout),
	}
	if err := s.payments.Create(ctx, tx, payment); err != nil {
		return nil, apperr.Internal(err, "create payment")
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "payment_retried",
		EntityType:  "payment",
		EntityID:    &payment.ID,
		NewValue:    strPtr(models.PaymentStatusPending),
		Meta:        map[string]any{"transaction_id": txnID.String()},
	}); err != nil {
		return nil, apperr.Internal(err, "audit retry")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "commit retry")
	}
	return payment, nil
}

// ExpireOverduePayments is the worker sweep for attempts the gateway
// never reported on. Passive deadline: rows are selected by comparing
// expires_at to now, nothing runs at the instant of expiry.
func (s *PaymentService) ExpireOverduePayments(ctx context.Context) (int, error) {
	overdue, err := s.payments.ListOverduePending(ctx, 100)
	if err != nil {
		return 0, apperr.Internal(err, "list overdue payments")
	}

	expired := 0
	for i := range overdue {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return expired, apperr.Internal(err, "begin tx")
		}
		outcome, err := s.expirePaymentTx(ctx, tx, &overdue[i], "system")
		if err != nil {
			_ = tx.Rollback(ctx)
			s.log.Error("payment expiry failed", zap.String("payment_id", overdue[i].ID.String()), zap.Error(err))
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			s.log.Error("payment expiry commit failed", zap.String("payment_id", overdue[i].ID.String()), zap.Error(err))
			continue
		}
		if outcome == OutcomeApplied {
			expired++
		}
	}
	return expired, nil
}
