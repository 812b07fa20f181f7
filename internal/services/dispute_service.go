package services

import (
	"context"
	"errors"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/config"
	"github.com/gametrade/backend/internal/events"
	"github.com/gametrade/backend/internal/models"
	"github.com/gametrade/backend/internal/rbac"
	"github.com/gametrade/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DisputeService struct {
	pool      *pgxpool.Pool
	disputes  *repositories.DisputeRepo
	txns      *repositories.TransactionRepo
	audit     *repositories.AuditRepo
	notify    *repositories.NotificationRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewDisputeService(
	pool *pgxpool.Pool,
	disputes *repositories.DisputeRepo,
	txns *repositories.TransactionRepo,
	audit *repositories.AuditRepo,
	notify *repositories.NotificationRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DisputeService {
	return &DisputeService{
		pool:      pool,
		disputes:  disputes,
		txns:      txns,
		audit:     audit,
		notify:    notify,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type CreateDisputeInput struct {
	TransactionID uuid.UUID
	Category      string
	Description   string
}

// Create opens a dispute on a transaction whose item has been handed
// over but not yet confirmed. The transaction moves to DISPUTED in the
// same database transaction, which also freezes the auto-release sweep.
func (s *DisputeService) Create(ctx context.Context, in CreateDisputeInput, caller models.Caller) (*models.Dispute, error) {
	if err := requireActor(caller, rbac.PermOpenDispute); err != nil {
		return nil, err
	}
	if !models.IsValidDisputeCategory(in.Category) {
		return nil, apperr.Validation("unknown dispute category %q", in.Category)
	}
	if len(in.Description) < s.cfg.MinDisputeDescription {
		return nil, apperr.Validation("description must be at least %d characters", s.cfg.MinDisputeDescription)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	txn, err := s.txns.GetByID(ctx, tx, in.TransactionID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperr.NotFound("transaction not found")
		}
		return nil, apperr.Internal(err, "load transaction")
	}
	if txn.BuyerUserID != caller.ID {
		return nil, apperr.Forbidden("only the buyer can open a dispute")
	}
	switch txn.Status {
	case models.TxStatusItemTransferred:
		// the only disputable state
	case models.TxStatusCompleted:
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "escrow already released, the transaction is completed")
	case models.TxStatusPendingPayment, models.TxStatusPaid:
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "item has not been transferred yet")
	default:
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "cannot dispute a transaction in status %s", txn.Status)
	}

	exists, err := s.disputes.ExistsForTransaction(ctx, tx, txn.ID)
	if err != nil {
		return nil, apperr.Internal(err, "check existing dispute")
	}
	if exists {
		return nil, apperr.Conflict(apperr.ReasonAlreadyDisputed, "transaction already has a dispute")
	}

	moved, err := s.txns.CompareAndSetStatus(ctx, tx, txn.ID, models.TxStatusItemTransferred, models.TxStatusDisputed)
	if err != nil {
		return nil, apperr.Internal(err, "transition transaction")
	}
	if !moved {
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "transaction state changed, try again")
	}

	dispute := &models.Dispute{
		TransactionID:   txn.ID,
		InitiatorUserID: caller.ID,
		Category:        in.Category,
		Description:     in.Description,
		Status:          models.DisputeStatusOpen,
	}
	if err := s.disputes.Create(ctx, tx, dispute); err != nil {
		return nil, apperr.Internal(err, "create dispute")
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "dispute_opened",
		EntityType:  "dispute",
		EntityID:    &dispute.ID,
		OldValue:    strPtr(models.TxStatusItemTransferred),
		NewValue:    strPtr(models.TxStatusDisputed),
		Meta:        map[string]any{"transaction_id": txn.ID.String(), "category": in.Category},
	}); err != nil {
		return nil, apperr.Internal(err, "audit dispute")
	}

	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     txn.SellerUserID,
		Kind:       models.NotifyDisputeOpened,
		Title:      "Dispute opened",
		Body:       "The buyer opened a dispute, payout is frozen until an arbiter resolves it",
		EntityType: strPtr("dispute"),
		EntityID:   &dispute.ID,
	}); err != nil {
		return nil, apperr.Internal(err, "notify seller")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "commit dispute")
	}

	_ = s.publisher.Publish(ctx, events.StreamDisputes, events.Event{
		Type: events.EventDisputeOpened,
		Payload: map[string]any{
			"dispute_id":     dispute.ID.String(),
			"transaction_id": txn.ID.String(),
			"category":       in.Category,
		},
	})
	return dispute, nil
}

// MarkUnderReview claims an open dispute for an arbiter.
func (s *DisputeService) MarkUnderReview(ctx context.Context, disputeID uuid.UUID, caller models.Caller) error {
	if err := requireActor(caller, rbac.PermResolveDispute); err != nil {
		return err
	}
	claimed, err := s.disputes.MarkUnderReview(ctx, disputeID, caller.ID)
	if err != nil {
		return apperr.Internal(err, "mark under review")
	}
	if !claimed {
		d, err := s.disputes.GetByID(ctx, s.pool, disputeID)
		if err != nil {
			if errors.Is(err, repositories.ErrDisputeNotFound) {
				return apperr.NotFound("dispute not found")
			}
			return apperr.Internal(err, "load dispute")
		}
		return apperr.Conflict(apperr.ReasonInvalidTransition, "dispute is already %s", d.Status)
	}
	return nil
}

// resolutionOutcome is the money math of a resolution, computed before
// any row is touched so the rules are testable in isolation.
type resolutionOutcome struct {
	RefundToBuyer int64
	SellerPayout  int64
	FinalTxStatus string
}

// computeResolution maps a resolution to refund, payout and the final
// transaction status. Partial amounts must leave both sides with a
// positive share and can never exceed what the seller stood to earn.
func computeResolution(resolution string, partial *int64, txnAmount, sellerPayout int64) (resolutionOutcome, error) {
	switch resolution {
	case models.ResolutionFullRefund:
		return resolutionOutcome{
			RefundToBuyer: txnAmount,
			SellerPayout:  0,
			FinalTxStatus: models.TxStatusRefunded,
		}, nil
	case models.ResolutionNoRefund:
		return resolutionOutcome{
			RefundToBuyer: 0,
			SellerPayout:  sellerPayout,
			FinalTxStatus: models.TxStatusCompleted,
		}, nil
	case models.ResolutionPartialRefund:
		if partial == nil {
			return resolutionOutcome{}, apperr.Validation("partial refund requires an amount")
		}
		if *partial <= 0 || *partial >= txnAmount {
			return resolutionOutcome{}, apperr.Validation("partial refund must be between 0 and the transaction amount")
		}
		if *partial > sellerPayout {
			return resolutionOutcome{}, apperr.Validation("partial refund cannot exceed the seller payout of %d", sellerPayout)
		}
		return resolutionOutcome{
			RefundToBuyer: *partial,
			SellerPayout:  sellerPayout - *partial,
			FinalTxStatus: models.TxStatusRefunded,
		}, nil
	default:
		return resolutionOutcome{}, apperr.Validation("unknown resolution %q", resolution)
	}
}

type ResolveDisputeInput struct {
	DisputeID           uuid.UUID
	Resolution          string
	PartialRefundAmount *int64
}

// Resolve closes a dispute with a refund decision. The dispute and the
// transaction reach their terminal states atomically, and a replay of
// the same decision hits the status guard and fails instead of paying
// twice.
func (s *DisputeService) Resolve(ctx context.Context, in ResolveDisputeInput, caller models.Caller) (*models.Dispute, error) {
	if err := requireActor(caller, rbac.PermResolveDispute); err != nil {
		return nil, err
	}
	if !models.IsValidResolution(in.Resolution) {
		return nil, apperr.Validation("unknown resolution %q", in.Resolution)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	dispute, err := s.disputes.GetByID(ctx, tx, in.DisputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, apperr.NotFound("dispute not found")
		}
		return nil, apperr.Internal(err, "load dispute")
	}
	if dispute.Status == models.DisputeStatusResolved {
		return nil, apperr.Conflict(apperr.ReasonAlreadyResolved, "dispute is already resolved")
	}

	txn, err := s.txns.GetByID(ctx, tx, dispute.TransactionID)
	if err != nil {
		return nil, apperr.Internal(err, "load transaction")
	}

	outcome, err := computeResolution(in.Resolution, in.PartialRefundAmount, txn.Amount, txn.SellerPayoutAmount)
	if err != nil {
		return nil, err
	}

	var partial *int64
	if in.Resolution == models.ResolutionPartialRefund {
		partial = in.PartialRefundAmount
	}
	resolved, err := s.disputes.Resolve(ctx, tx, dispute.ID, caller.ID, in.Resolution, partial)
	if err != nil {
		return nil, apperr.Internal(err, "resolve dispute")
	}
	if !resolved {
		return nil, apperr.Conflict(apperr.ReasonAlreadyResolved, "dispute is already resolved")
	}

	moved, err := s.txns.CompareAndSetStatus(ctx, tx, txn.ID, models.TxStatusDisputed, outcome.FinalTxStatus)
	if err != nil {
		return nil, apperr.Internal(err, "transition transaction")
	}
	if !moved {
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "transaction is no longer disputed")
	}
	if outcome.SellerPayout != txn.SellerPayoutAmount {
		if err := s.txns.SetSellerPayout(ctx, tx, txn.ID, outcome.SellerPayout); err != nil {
			return nil, apperr.Internal(err, "adjust payout")
		}
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "admin",
		Action:      "dispute_resolved",
		EntityType:  "dispute",
		EntityID:    &dispute.ID,
		OldValue:    strPtr(models.TxStatusDisputed),
		NewValue:    strPtr(outcome.FinalTxStatus),
		Meta: map[string]any{
			"transaction_id":  txn.ID.String(),
			"resolution":      in.Resolution,
			"refund_to_buyer": outcome.RefundToBuyer,
			"seller_payout":   outcome.SellerPayout,
		},
	}); err != nil {
		return nil, apperr.Internal(err, "audit resolution")
	}

	buyerBody := "Your dispute was resolved: " + in.Resolution
	if outcome.RefundToBuyer > 0 {
		buyerBody += ", " + formatAmount(outcome.RefundToBuyer) + " will be refunded"
	}
	sellerBody := "The dispute on your sale was resolved: " + in.Resolution
	if outcome.SellerPayout > 0 {
		sellerBody += ", " + formatAmount(outcome.SellerPayout) + " will be paid out"
	}
	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     txn.BuyerUserID,
		Kind:       models.NotifyDisputeResolved,
		Title:      "Dispute resolved",
		Body:       buyerBody,
		EntityType: strPtr("dispute"),
		EntityID:   &dispute.ID,
	}); err != nil {
		return nil, apperr.Internal(err, "notify buyer")
	}
	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     txn.SellerUserID,
		Kind:       models.NotifyDisputeResolved,
		Title:      "Dispute resolved",
		Body:       sellerBody,
		EntityType: strPtr("dispute"),
		EntityID:   &dispute.ID,
	}); err != nil {
		return nil, apperr.Internal(err, "notify seller")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "commit resolution")
	}

	dispute, err = s.disputes.GetByID(ctx, s.pool, in.DisputeID)
	if err != nil {
		return nil, apperr.Internal(err, "reload dispute")
	}

	_ = s.publisher.Publish(ctx, events.StreamDisputes, events.Event{
		Type: events.EventDisputeResolved,
		Payload: map[string]any{
			"dispute_id":      dispute.ID.String(),
			"transaction_id":  txn.ID.String(),
			"resolution":      in.Resolution,
			"refund_to_buyer": outcome.RefundToBuyer,
		},
	})
	return dispute, nil
}

// Get returns a dispute to its parties or an admin.
func (s *DisputeService) Get(ctx context.Context, disputeID uuid.UUID, caller models.Caller) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, s.pool, disputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, apperr.NotFound("dispute not found")
		}
		return nil, apperr.Internal(err, "load dispute")
	}
	if caller.Role == models.RoleAdmin || dispute.InitiatorUserID == caller.ID {
		return dispute, nil
	}
	txn, err := s.txns.GetByID(ctx, s.pool, dispute.TransactionID)
	if err != nil {
		return nil, apperr.Internal(err, "load transaction")
	}
	if txn.SellerUserID != caller.ID {
		return nil, apperr.Forbidden("not a party to this dispute")
	}
	return dispute, nil
}

// List is admin-only.
func (s *DisputeService) List(ctx context.Context, status *string, limit, offset int, caller models.Caller) ([]models.Dispute, error) {
	if caller.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("admin only")
	}
	disputes, err := s.disputes.List(ctx, status, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "list disputes")
	}
	return disputes, nil
}
