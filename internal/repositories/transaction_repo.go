package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gametrade/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const txColumns = `id, listing_id, buyer_user_id, seller_user_id, status, amount,
       platform_fee_amount, seller_payout_amount, verification_deadline,
       item_transferred_at, completed_at, created_at, updated_at`

func scanTx(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerUserID, &t.SellerUserID, &t.Status, &t.Amount,
		&t.PlatformFeeAmount, &t.SellerPayoutAmount, &t.VerificationDeadline,
		&t.ItemTransferredAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) Create(ctx context.Context, q Querier, t *models.Transaction) error {
	return q.QueryRow(ctx, `
		INSERT INTO transactions (listing_id, buyer_user_id, seller_user_id, status,
		                          amount, platform_fee_amount, seller_payout_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, t.ListingID, t.BuyerUserID, t.SellerUserID, t.Status,
		t.Amount, t.PlatformFeeAmount, t.SellerPayoutAmount,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*models.Transaction, error) {
	return scanTx(q.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

// HasOpenForListing reports whether a non-terminal transaction already
// references the listing. Callers must hold the listing row lock so the
// check and the subsequent insert form one serialized unit.
func (r *TransactionRepo) HasOpenForListing(ctx context.Context, q Querier, listingID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE listing_id = $1 AND status NOT IN ($2, $3, $4)
		)
	`, listingID, models.TxStatusCompleted, models.TxStatusCancelled, models.TxStatusRefunded).Scan(&exists)
	return exists, err
}

// CompareAndSetStatus performs the from->to transition only while the
// row still holds from. Zero rows affected means a concurrent writer
// moved the transaction first.
func (r *TransactionRepo) CompareAndSetStatus(ctx context.Context, q Querier, id uuid.UUID, from, to string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE transactions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkItemTransferred is the paid -> item_transferred transition plus
// the escrow verification deadline, one conditional write.
func (r *TransactionRepo) MarkItemTransferred(ctx context.Context, q Querier, id uuid.UUID, deadline time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = $1, item_transferred_at = now(), verification_deadline = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.TxStatusItemTransferred, deadline, id, models.TxStatusPaid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepo) MarkCompleted(ctx context.Context, q Querier, id uuid.UUID, from string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE transactions SET status = $1, completed_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.TxStatusCompleted, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetSellerPayout rewrites the payout after a partial refund.
func (r *TransactionRepo) SetSellerPayout(ctx context.Context, q Querier, id uuid.UUID, payout int64) error {
	_, err := q.Exec(ctx, `UPDATE transactions SET seller_payout_amount = $1, updated_at = now() WHERE id = $2`, payout, id)
	return err
}

// ListPastVerificationDeadline feeds the auto-release sweep: paid-for
// items the buyer never confirmed nor disputed inside the window.
func (r *TransactionRepo) ListPastVerificationDeadline(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = $1 AND verification_deadline < now()
		ORDER BY verification_deadline ASC LIMIT $2
	`, models.TxStatusItemTransferred, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTxs(rows)
}

type TransactionFilter struct {
	BuyerUserID  *uuid.UUID
	SellerUserID *uuid.UUID
	Status       *string
	Limit        int
	Offset       int
}

func (r *TransactionRepo) ListWithListing(ctx context.Context, f TransactionFilter) ([]models.TransactionWithListing, error) {
	query := `
		SELECT t.id, t.listing_id, t.buyer_user_id, t.seller_user_id, t.status, t.amount,
		       t.platform_fee_amount, t.seller_payout_amount, t.verification_deadline,
		       t.item_transferred_at, t.completed_at, t.created_at, t.updated_at,
		       l.title, l.listing_type
		FROM transactions t
		JOIN listings l ON l.id = t.listing_id
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerUserID != nil {
		where = append(where, fmt.Sprintf("t.buyer_user_id = $%d", argIdx))
		args = append(args, *f.BuyerUserID)
		argIdx++
	}
	if f.SellerUserID != nil {
		where = append(where, fmt.Sprintf("t.seller_user_id = $%d", argIdx))
		args = append(args, *f.SellerUserID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("t.status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.TransactionWithListing
	for rows.Next() {
		var t models.TransactionWithListing
		if err := rows.Scan(&t.ID, &t.ListingID, &t.BuyerUserID, &t.SellerUserID, &t.Status, &t.Amount,
			&t.PlatformFeeAmount, &t.SellerPayoutAmount, &t.VerificationDeadline,
			&t.ItemTransferredAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
			&t.ListingTitle, &t.ListingType); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}

func collectTxs(rows pgx.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.ListingID, &t.BuyerUserID, &t.SellerUserID, &t.Status, &t.Amount,
			&t.PlatformFeeAmount, &t.SellerPayoutAmount, &t.VerificationDeadline,
			&t.ItemTransferredAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}
