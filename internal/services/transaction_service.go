package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/events"
	"github.com/gametrade/backend/internal/models"
	"github.com/gametrade/backend/internal/money"
	"github.com/gametrade/backend/internal/rbac"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type TransactionService struct {
	pool      *pgxpool.Pool
	txns      *repositories.TransactionRepo
	listings  *repositories.ListingRepo
	payments  *repositories.PaymentRepo
	users     *repositories.UserRepo
	audit     *repositories.AuditRepo
	notify    *repositories.NotificationRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewTransactionService(
	pool *pgxpool.Pool,
	txns *repositories.TransactionRepo,
	listings *repositories.ListingRepo,
	payments *repositories.PaymentRepo,
	users *repositories.UserRepo,
	audit *repositories.AuditRepo,
	notify *repositories.NotificationRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *TransactionService {
	return &TransactionService{
		pool:      pool,
		txns:      txns,
		listings:  listings,
		payments:  payments,
		users:     users,
		audit:     audit,
		notify:    notify,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type escrowTransactionParams struct {
	Listing        *models.Listing
	BuyerUserID    uuid.UUID
	Amount         int64
	FeeBPS         int
	PaymentTimeout time.Duration
	Method         *string
}

// createEscrowTransaction writes the transaction in PENDING_PAYMENT and
// its first PENDING payment attempt inside the caller's tx. Shared by
// direct purchase and auction settlement.
func createEscrowTransaction(ctx context.Context, q repositories.Querier, txns *repositories.TransactionRepo, payments *repositories.PaymentRepo, p escrowTransactionParams) (*models.Transaction, error) {
	split, err := money.Split(p.Amount, p.FeeBPS)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ListingID:          p.Listing.ID,
		BuyerUserID:        p.BuyerUserID,
		SellerUserID:       p.Listing.SellerUserID,
		Status:             models.TxStatusPendingPayment,
		Amount:             p.Amount,
		PlatformFeeAmount:  split.Fee,
		SellerPayoutAmount: split.SellerPayout,
	}
	if err := txns.Create(ctx, q, txn); err != nil {
		return nil, apperr.Internal(err, "create transaction")
	}

	payment := &models.Payment{
		TransactionID:     txn.ID,
		ExternalGatewayID: newChargeRef(),
		Method:            p.Method,
		Amount:            p.Amount,
		Status:            models.PaymentStatusPending,
		ExpiresAt:         time.Now().Add(p.PaymentTimeout),
	}
	if err := payments.Create(ctx, q, payment); err != nil {
		return nil, apperr.Internal(err, "create payment")
	}

	return txn, nil
}

// newChargeRef is the reference handed to the gateway when the charge
// is created; webhook events echo it back as the external id.
func newChargeRef() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "chg_" + hex.EncodeToString(b)
}

// Create starts a direct purchase of a fixed-price listing. The listing
// row is locked for the duration of the unit so two buyers cannot open
// overlapping pending transactions.
func (s *TransactionService) Create(ctx context.Context, listingID uuid.UUID, caller models.Caller, method *string) (*models.Transaction, error) {
	if err := requireActor(caller, rbac.PermPurchase); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	listing, err := s.listings.GetByIDForUpdate(ctx, tx, listingID)
	if err != nil {
		if errors.Is(err, repositories.ErrListingNotFound) {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, apperr.Internal(err, "load listing")
	}

	if listing.Status != models.ListingStatusActive {
		return nil, apperr.Conflict(apperr.ReasonAlreadyFinished, "listing is not available for purchase")
	}
	if listing.IsAuction() {
		return nil, apperr.Validation("auction listings are sold through settlement, place a bid instead")
	}
	if listing.SellerUserID == caller.ID {
		return nil, apperr.Forbidden("seller cannot buy own listing")
	}

	open, err := s.txns.HasOpenForListing(ctx, tx, listingID)
	if err != nil {
		return nil, apperr.Internal(err, "check open transactions")
	}
	if open {
		return nil, apperr.Conflict(apperr.ReasonListingReserved, "listing already has a pending purchase")
	}

	txn, err := createEscrowTransaction(ctx, tx, s.txns, s.payments, escrowTransactionParams{
		Listing:        listing,
		BuyerUserID:    caller.ID,
		Amount:         listing.SaleAmount(),
		FeeBPS:         s.sellerFeeBPS(ctx, listing.SellerUserID),
		PaymentTimeout: s.cfg.PaymentTimeout,
		Method:         method,
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "transaction_created",
		EntityType:  "transaction",
		EntityID:    &txn.ID,
		NewValue:    strPtr(models.TxStatusPendingPayment),
		Meta:        map[string]any{"listing_id": listingID.String(), "amount": txn.Amount},
	}); err != nil {
		return nil, apperr.Internal(err, "audit transaction")
	}

	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     listing.SellerUserID,
		Kind:       models.NotifyTransactionCreated,
		Title:      "Your item has a buyer",
		Body:       "A buyer committed to your listing, waiting for payment",
		EntityType: strPtr("transaction"),
		EntityID:   &txn.ID,
	}); err != nil {
		return nil, apperr.Internal(err, "notify seller")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "commit transaction")
	}

	s.publishStatus(ctx, txn.ID, "", models.TxStatusPendingPayment)
	return txn, nil
}

func (s *TransactionService) Get(ctx context.Context, id uuid.UUID, caller models.Caller) (*models.Transaction, error) {
	txn, err := s.txns.GetByID(ctx, s.pool, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperr.NotFound("transaction not found")
		}
		return nil, apperr.Internal(err, "load transaction")
	}
	if txn.BuyerUserID != caller.ID && txn.SellerUserID != caller.ID && !caller.IsAdmin() {
		return nil, apperr.Forbidden("not a party to this transaction")
	}
	return txn, nil
}

func (s *TransactionService) List(ctx context.Context, f repositories.TransactionFilter) ([]models.TransactionWithListing, error) {
	txs, err := s.txns.ListWithListing(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "list transactions")
	}
	return txs, nil
}

// MarkItemTransferred records the seller handing over the goods and
// starts the buyer verification window.
func (s *TransactionService) MarkItemTransferred(ctx context.Context, txnID uuid.UUID, caller models.Caller) error {
	if err := requireActor(caller, rbac.PermTransferItem); err != nil {
		return err
	}

	txn, err := s.txns.GetByID(ctx, s.pool, txnID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return apperr.NotFound("transaction not found")
		}
		return apperr.Internal(err, "load transaction")
	}
	if txn.SellerUserID != caller.ID {
		return apperr.Forbidden("only the seller can mark the item transferred")
	}

	deadline := time.Now().Add(s.cfg.VerificationDeadline)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	ok, err := s.txns.MarkItemTransferred(ctx, tx, txnID, deadline)
	if err != nil {
		return apperr.Internal(err, "mark item transferred")
	}
	if !ok {
		return apperr.Conflict(apperr.ReasonInvalidTransition,
			"cannot transfer item from status %s", txn.Status)
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "item_transferred",
		EntityType:  "transaction",
		EntityID:    &txnID,
		OldValue:    strPtr(models.TxStatusPaid),
		NewValue:    strPtr(models.TxStatusItemTransferred),
		Meta:        map[string]any{"verification_deadline": deadline.UTC()},
	}); err != nil {
		return apperr.Internal(err, "audit transfer")
	}

	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     txn.BuyerUserID,
		Kind:       models.NotifyItemTransferred,
		Title:      "Item transferred",
		Body:       "The seller marked the item as transferred, verify it before the deadline or the escrow releases automatically",
		EntityType: strPtr("transaction"),
		EntityID:   &txnID,
	}); err != nil {
		return apperr.Internal(err, "notify buyer")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal(err, "commit transfer")
	}

	s.publishStatus(ctx, txnID, models.TxStatusPaid, models.TxStatusItemTransferred)
	return nil
}

// ConfirmReceipt lets the buyer complete early instead of waiting out
// the verification window.
func (s *TransactionService) ConfirmReceipt(ctx context.Context, txnID uuid.UUID, caller models.Caller) error {
	if err := requireActor(caller, rbac.PermConfirmReceipt); err != nil {
		return err
	}

	txn, err := s.txns.GetByID(ctx, s.pool, txnID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return apperr.NotFound("transaction not found")
		}
		return apperr.Internal(err, "load transaction")
	}
	if txn.BuyerUserID != caller.ID {
		return apperr.Forbidden("only the buyer can confirm receipt")
	}

	return s.complete(ctx, txn, &caller.ID, "user", "receipt_confirmed")
}

// AutoCompleteExpired releases escrow for transferred items whose
// verification deadline passed without a dispute. Safe to re-run: the
// completion is conditional on ITEM_TRANSFERRED, so rows that moved on
// are skipped.
func (s *TransactionService) AutoCompleteExpired(ctx context.Context) (int, error) {
	txs, err := s.txns.ListPastVerificationDeadline(ctx, 100)
	if err != nil {
		return 0, apperr.Internal(err, "list expired verifications")
	}

	released := 0
	for i := range txs {
		if err := s.complete(ctx, &txs[i], nil, "system", "escrow_auto_released"); err != nil {
			if apperr.IsCode(err, apperr.CodeConflict) {
				continue // raced with a dispute or confirmation
			}
			s.log.Error("auto-complete failed", zap.String("transaction_id", txs[i].ID.String()), zap.Error(err))
			continue
		}
		released++
	}
	return released, nil
}

func (s *TransactionService) complete(ctx context.Context, txn *models.Transaction, actorID *uuid.UUID, actorType, action string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	ok, err := s.txns.MarkCompleted(ctx, tx, txn.ID, models.TxStatusItemTransferred)
	if err != nil {
		return apperr.Internal(err, "complete transaction")
	}
	if !ok {
		return apperr.Conflict(apperr.ReasonInvalidTransition,
			"transaction is no longer awaiting verification")
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      action,
		EntityType:  "transaction",
		EntityID:    &txn.ID,
		OldValue:    strPtr(models.TxStatusItemTransferred),
		NewValue:    strPtr(models.TxStatusCompleted),
		Meta:        map[string]any{"seller_payout": txn.SellerPayoutAmount},
	}); err != nil {
		return apperr.Internal(err, "audit completion")
	}

	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     txn.SellerUserID,
		Kind:       models.NotifyEscrowReleased,
		Title:      "Escrow released",
		Body:       "Your payout of " + formatAmount(txn.SellerPayoutAmount) + " has been released",
		EntityType: strPtr("transaction"),
		EntityID:   &txn.ID,
	}); err != nil {
		return apperr.Internal(err, "notify seller")
	}

	// On deadline auto-release the buyer never acted, so tell them too.
	if actorType == "system" {
		if err := s.notify.Create(ctx, tx, &models.Notification{
			UserID:     txn.BuyerUserID,
			Kind:       models.NotifyTransactionCompleted,
			Title:      "Transaction completed",
			Body:       "The verification window closed and the transaction was completed",
			EntityType: strPtr("transaction"),
			EntityID:   &txn.ID,
		}); err != nil {
			return apperr.Internal(err, "notify buyer")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal(err, "commit completion")
	}

	s.publishStatus(ctx, txn.ID, models.TxStatusItemTransferred, models.TxStatusCompleted)
	return nil
}

func (s *TransactionService) GetEvents(ctx context.Context, txnID uuid.UUID) ([]models.AuditLog, error) {
	return s.audit.GetByEntity(ctx, "transaction", txnID, 100, 0)
}

func (s *TransactionService) sellerFeeBPS(ctx context.Context, sellerID uuid.UUID) int {
	u, err := s.users.GetByID(ctx, sellerID)
	if err == nil && u.FeeRateBPS != nil {
		return *u.FeeRateBPS
	}
	return s.cfg.PlatformFeeBPS
}

func (s *TransactionService) publishStatus(ctx context.Context, txnID uuid.UUID, oldStatus, newStatus string) {
	_ = s.publisher.Publish(ctx, events.StreamTransactions, events.Event{
		Type: events.EventTransactionStatusChanged,
		Payload: map[string]any{
			"transaction_id": txnID.String(),
			"old_status":     oldStatus,
			"new_status":     newStatus,
		},
	})
}
