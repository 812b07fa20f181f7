package repositories

import (
	"context"
	"errors"

	"github.com/gametrade/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrListingNotFound = errors.New("listing not found")

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `id, seller_user_id, title, listing_type, status, price,
       starting_bid, current_bid, bid_increment, auction_ends_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.SellerUserID, &l.Title, &l.ListingType, &l.Status, &l.Price,
		&l.StartingBid, &l.CurrentBid, &l.BidIncrement, &l.AuctionEndsAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (seller_user_id, title, listing_type, status, price,
		                      starting_bid, bid_increment, auction_ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, l.SellerUserID, l.Title, l.ListingType, l.Status, l.Price,
		l.StartingBid, l.BidIncrement, l.AuctionEndsAt,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

func (r *ListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return scanListing(r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

// GetByIDForUpdate locks the listing row for the duration of the
// caller's transaction, serializing purchase creation per listing.
func (r *ListingRepo) GetByIDForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*models.Listing, error) {
	return scanListing(q.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
}

// CompareAndSetCurrentBid raises current_bid only if it still holds the
// value the caller read. A false return means a concurrent bid won.
func (r *ListingRepo) CompareAndSetCurrentBid(ctx context.Context, q Querier, listingID uuid.UUID, expected *int64, amount int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE listings SET current_bid = $1, updated_at = now()
		WHERE id = $2 AND status = $3 AND current_bid IS NOT DISTINCT FROM $4
	`, amount, listingID, models.ListingStatusActive, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndSetStatus flips status only from the expected prior value,
// which makes settlement and webhook transitions idempotent.
func (r *ListingRepo) CompareAndSetStatus(ctx context.Context, q Querier, listingID uuid.UUID, from, to string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE listings SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, listingID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ---- Bids ----

func (r *ListingRepo) InsertBid(ctx context.Context, q Querier, b *models.Bid) error {
	return q.QueryRow(ctx, `
		INSERT INTO bids (listing_id, bidder_user_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, b.ListingID, b.BidderUserID, b.Amount).Scan(&b.ID, &b.CreatedAt)
}

func (r *ListingRepo) CountBids(ctx context.Context, q Querier, listingID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE listing_id = $1`, listingID).Scan(&n)
	return n, err
}

func (r *ListingRepo) GetHighestBid(ctx context.Context, q Querier, listingID uuid.UUID) (*models.Bid, error) {
	var b models.Bid
	err := q.QueryRow(ctx, `
		SELECT id, listing_id, bidder_user_id, amount, created_at
		FROM bids WHERE listing_id = $1
		ORDER BY amount DESC, created_at ASC LIMIT 1
	`, listingID).Scan(&b.ID, &b.ListingID, &b.BidderUserID, &b.Amount, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *ListingRepo) ListBids(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, listing_id, bidder_user_id, amount, created_at
		FROM bids WHERE listing_id = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, listingID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.ListingID, &b.BidderUserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}
