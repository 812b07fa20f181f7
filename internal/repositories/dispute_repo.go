package repositories

import (
	"context"
	"errors"

	"github.com/gametrade/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `id, transaction_id, initiator_user_id, category, description,
       status, resolution, partial_refund_amount, resolved_by_user_id, resolved_at, created_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.TransactionID, &d.InitiatorUserID, &d.Category, &d.Description,
		&d.Status, &d.Resolution, &d.PartialRefundAmount, &d.ResolvedByUserID, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepo) Create(ctx context.Context, q Querier, d *models.Dispute) error {
	return q.QueryRow(ctx, `
		INSERT INTO disputes (transaction_id, initiator_user_id, category, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, d.TransactionID, d.InitiatorUserID, d.Category, d.Description, d.Status).Scan(&d.ID, &d.CreatedAt)
}

func (r *DisputeRepo) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(q.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

// ExistsForTransaction enforces the one-dispute-per-transaction rule
// (backed by a unique index on transaction_id).
func (r *DisputeRepo) ExistsForTransaction(ctx context.Context, q Querier, txnID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM disputes WHERE transaction_id = $1)`, txnID).Scan(&exists)
	return exists, err
}

func (r *DisputeRepo) MarkUnderReview(ctx context.Context, id uuid.UUID, adminID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes SET status = $1, resolved_by_user_id = $2
		WHERE id = $3 AND status = $4
	`, models.DisputeStatusUnderReview, adminID, id, models.DisputeStatusOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Resolve is terminal; the status guard makes a second resolution a
// zero-row update rather than an overwrite.
func (r *DisputeRepo) Resolve(ctx context.Context, q Querier, id uuid.UUID, adminID uuid.UUID, resolution string, partialAmount *int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE disputes
		SET status = $1, resolution = $2, partial_refund_amount = $3,
		    resolved_by_user_id = $4, resolved_at = now()
		WHERE id = $5 AND status <> $1
	`, models.DisputeStatusResolved, resolution, partialAmount, adminID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DisputeRepo) List(ctx context.Context, status *string, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		var d models.Dispute
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.InitiatorUserID, &d.Category, &d.Description,
			&d.Status, &d.Resolution, &d.PartialRefundAmount, &d.ResolvedByUserID, &d.ResolvedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, nil
}
