package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/gametrade/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, transaction_id, external_gateway_id, method, amount,
       status, paid_at, expires_at, created_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.TransactionID, &p.ExternalGatewayID, &p.Method, &p.Amount,
		&p.Status, &p.PaidAt, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, q Querier, p *models.Payment) error {
	return q.QueryRow(ctx, `
		INSERT INTO payments (transaction_id, external_gateway_id, method, amount, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.TransactionID, p.ExternalGatewayID, p.Method, p.Amount, p.Status, p.ExpiresAt).Scan(&p.ID, &p.CreatedAt)
}

// GetByExternalID resolves a gateway event to our payment record.
func (r *PaymentRepo) GetByExternalID(ctx context.Context, q Querier, externalID string) (*models.Payment, error) {
	return scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_gateway_id = $1`, externalID))
}

// GetLatestByTransactionID is the fallback lookup when the gateway only
// echoes our transaction reference.
func (r *PaymentRepo) GetLatestByTransactionID(ctx context.Context, q Querier, txnID uuid.UUID) (*models.Payment, error) {
	return scanPayment(q.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE transaction_id = $1 ORDER BY created_at DESC LIMIT 1
	`, txnID))
}

// MarkPaid flips pending -> paid. Zero rows affected means the payment
// was already paid or expired; webhook replays land here and no-op.
func (r *PaymentRepo) MarkPaid(ctx context.Context, q Querier, id uuid.UUID, method *string, paidAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payments SET status = $1, method = COALESCE($2, method), paid_at = $3
		WHERE id = $4 AND status = $5
	`, models.PaymentStatusPaid, method, paidAt, id, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) MarkExpired(ctx context.Context, q Querier, id uuid.UUID) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payments SET status = $1 WHERE id = $2 AND status = $3
	`, models.PaymentStatusExpired, id, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountPendingForTransaction tells the expiry path whether a sibling
// attempt is still live before the transaction is cancelled.
func (r *PaymentRepo) CountPendingForTransaction(ctx context.Context, q Querier, txnID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM payments WHERE transaction_id = $1 AND status = $2
	`, txnID, models.PaymentStatusPending).Scan(&n)
	return n, err
}

// ListOverduePending feeds the expiry sweep.
func (r *PaymentRepo) ListOverduePending(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 AND expires_at < now()
		ORDER BY expires_at ASC LIMIT $2
	`, models.PaymentStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.ExternalGatewayID, &p.Method, &p.Amount,
			&p.Status, &p.PaidAt, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}
