package services

import (
	"context"
	"errors"
	"time"

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

// bidRetries bounds how many times a bid re-attempts the conditional
// current_bid update after losing a race it would still win on price.
const bidRetries = 3

type ListingService struct {
	pool      *pgxpool.Pool
	listings  *repositories.ListingRepo
	txns      *repositories.TransactionRepo
	payments  *repositories.PaymentRepo
	users     *repositories.UserRepo
	audit     *repositories.AuditRepo
	notify    *repositories.NotificationRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewListingService(
	pool *pgxpool.Pool,
	listings *repositories.ListingRepo,
	txns *repositories.TransactionRepo,
	payments *repositories.PaymentRepo,
	users *repositories.UserRepo,
	audit *repositories.AuditRepo,
	notify *repositories.NotificationRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *ListingService {
	return &ListingService{
		pool:      pool,
		listings:  listings,
		txns:      txns,
		payments:  payments,
		users:     users,
		audit:     audit,
		notify:    notify,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type CreateListingInput struct {
	Title         string
	ListingType   string
	Price         int64
	StartingBid   int64
	BidIncrement  int64
	AuctionEndsAt *time.Time
}

// CreateListing publishes a new listing. Listings go straight to ACTIVE;
// moderation queues are an external concern.
func (s *ListingService) CreateListing(ctx context.Context, in CreateListingInput, caller models.Caller) (*models.Listing, error) {
	if err := requireActor(caller, rbac.PermCreateListing); err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}

	switch in.ListingType {
	case models.ListingTypeFixed:
		if in.Price <= 0 {
			return nil, apperr.Validation("price must be positive")
		}
	case models.ListingTypeAuction:
		if in.StartingBid <= 0 {
			return nil, apperr.Validation("starting bid must be positive")
		}
		if in.BidIncrement <= 0 {
			return nil, apperr.Validation("bid increment must be positive")
		}
		if in.AuctionEndsAt == nil || !in.AuctionEndsAt.After(time.Now()) {
			return nil, apperr.Validation("auction end must be in the future")
		}
	default:
		return nil, apperr.Validation("unknown listing type %q", in.ListingType)
	}

	listing := &models.Listing{
		SellerUserID:  caller.ID,
		Title:         in.Title,
		ListingType:   in.ListingType,
		Status:        models.ListingStatusActive,
		Price:         in.Price,
		StartingBid:   in.StartingBid,
		BidIncrement:  in.BidIncrement,
		AuctionEndsAt: in.AuctionEndsAt,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, apperr.Internal(err, "create listing")
	}

	_ = s.audit.Log(ctx, s.pool, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "listing_created",
		EntityType:  "listing",
		EntityID:    &listing.ID,
		NewValue:    strPtr(models.ListingStatusActive),
		Meta:        map[string]any{"listing_type": in.ListingType},
	})
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		if err == repositories.ErrListingNotFound {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, apperr.Internal(err, "load listing")
	}
	return listing, nil
}

func (s *ListingService) ListBids(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]models.Bid, error) {
	bids, err := s.listings.ListBids(ctx, listingID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err, "list bids")
	}
	return bids, nil
}

// validateBid re-checks every precondition against a fresh listing
// read; it runs once per attempt so a raced bid fails against the
// post-update current_bid, never a stale one.
func validateBid(listing *models.Listing, caller models.Caller, amount, maxBid int64, now time.Time) error {
	if listing.Status != models.ListingStatusActive {
		return apperr.Conflict(apperr.ReasonAlreadyFinished, "listing is no longer accepting bids")
	}
	if !listing.IsAuction() {
		return apperr.Validation("listing is not an auction")
	}
	if listing.AuctionEnded(now) {
		return apperr.Conflict(apperr.ReasonAlreadyFinished, "auction has ended")
	}
	if listing.SellerUserID == caller.ID {
		return apperr.Forbidden("seller cannot bid on own listing")
	}
	if amount > maxBid {
		return apperr.Validation("bid exceeds the maximum allowed amount of %d", maxBid)
	}
	if min := listing.MinNextBid(); amount < min {
		return apperr.Conflict(apperr.ReasonBidTooLow, "bid too low, minimum is %d", min)
	}
	return nil
}

// PlaceBid accepts a competitive bid. The current_bid update is a
// compare-and-swap scoped to the listing row; two concurrent bids
// resolve to one winner and one BidTooLow against the fresh price.
func (s *ListingService) PlaceBid(ctx context.Context, listingID uuid.UUID, caller models.Caller, amount int64) (*models.Bid, error) {
	if err := requireActor(caller, rbac.PermPlaceBid); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < bidRetries; attempt++ {
		listing, err := s.GetListing(ctx, listingID)
		if err != nil {
			return nil, err
		}
		if err := validateBid(listing, caller, amount, s.cfg.MaxBidAmount, time.Now()); err != nil {
			return nil, err
		}

		bid, swapped, err := s.tryPlaceBid(ctx, listing, caller, amount)
		if err != nil {
			return nil, err
		}
		if swapped {
			s.publishBid(ctx, bid)
			return bid, nil
		}
		// Lost the swap; loop re-reads and re-validates.
	}

	// Retry budget exhausted. Re-read so the conflict carries the price
	// as it stands now, not the stale value this call kept losing to.
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return nil, outbidConflict(listing)
}

// outbidConflict reports a lost bid race against the current price.
func outbidConflict(l *models.Listing) error {
	return apperr.Conflict(apperr.ReasonBidTooLow,
		"someone just outbid you, current price is %d, minimum is %d",
		l.SaleAmount(), l.MinNextBid())
}

func (s *ListingService) tryPlaceBid(ctx context.Context, listing *models.Listing, caller models.Caller, amount int64) (*models.Bid, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, apperr.Internal(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	prevTop, err := s.listings.GetHighestBid(ctx, tx, listing.ID)
	if err != nil {
		return nil, false, apperr.Internal(err, "load highest bid")
	}

	swapped, err := s.listings.CompareAndSetCurrentBid(ctx, tx, listing.ID, listing.CurrentBid, amount)
	if err != nil {
		return nil, false, apperr.Internal(err, "update current bid")
	}
	if !swapped {
		return nil, false, nil
	}

	bid := &models.Bid{ListingID: listing.ID, BidderUserID: caller.ID, Amount: amount}
	if err := s.listings.InsertBid(ctx, tx, bid); err != nil {
		return nil, false, apperr.Internal(err, "insert bid")
	}

	oldBid := int64(0)
	if listing.CurrentBid != nil {
		oldBid = *listing.CurrentBid
	}
	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "bid_placed",
		EntityType:  "listing",
		EntityID:    &listing.ID,
		OldValue:    strPtr(formatAmount(oldBid)),
		NewValue:    strPtr(formatAmount(amount)),
		Meta:        map[string]any{"bid_id": bid.ID.String()},
	}); err != nil {
		return nil, false, apperr.Internal(err, "audit bid")
	}

	if prevTop != nil && prevTop.BidderUserID != caller.ID {
		if err := s.notify.Create(ctx, tx, &models.Notification{
			UserID:     prevTop.BidderUserID,
			Kind:       models.NotifyOutbid,
			Title:      "You have been outbid",
			Body:       "Someone just outbid you, current price is " + formatAmount(amount),
			EntityType: strPtr("listing"),
			EntityID:   &listing.ID,
		}); err != nil {
			return nil, false, apperr.Internal(err, "notify outbid")
		}
	}
	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     listing.SellerUserID,
		Kind:       models.NotifyNewBid,
		Title:      "New bid on your listing",
		Body:       "Your listing received a bid of " + formatAmount(amount),
		EntityType: strPtr("listing"),
		EntityID:   &listing.ID,
	}); err != nil {
		return nil, false, apperr.Internal(err, "notify seller")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, apperr.Internal(err, "commit bid")
	}
	return bid, true, nil
}

// settleDecision picks the terminal status for a locked auction row.
// Any status other than ACTIVE means a previous call already settled
// or cancelled the listing.
func settleDecision(l *models.Listing, bidCount int) (string, error) {
	if l.Status != models.ListingStatusActive {
		return "", apperr.Conflict(apperr.ReasonAlreadyFinished, "auction already finished")
	}
	if bidCount == 0 {
		return models.ListingStatusCancelled, nil
	}
	return models.ListingStatusSold, nil
}

// FinishAuction settles an auction: with bids it converts the winning
// bid into an escrow transaction and marks the listing sold, without
// bids it cancels the listing. The listing row stays locked from the
// first read to the commit, so an in-flight bid either lands before
// the winner is read or fails its conditional update once the status
// has left ACTIVE; a second settlement call fails the same way.
func (s *ListingService) FinishAuction(ctx context.Context, listingID uuid.UUID, caller models.Caller) (*models.Transaction, error) {
	if err := requireActor(caller, rbac.PermFinishAuction); err != nil {
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
		return nil, apperr.Internal(err, "lock listing")
	}
	if listing.SellerUserID != caller.ID {
		return nil, apperr.Forbidden("only the seller can finish this auction")
	}
	if !listing.IsAuction() {
		return nil, apperr.Validation("listing is not an auction")
	}

	bidCount, err := s.listings.CountBids(ctx, tx, listingID)
	if err != nil {
		return nil, apperr.Internal(err, "count bids")
	}
	finalStatus, err := settleDecision(listing, bidCount)
	if err != nil {
		return nil, err
	}

	if finalStatus == models.ListingStatusCancelled {
		ok, err := s.listings.CompareAndSetStatus(ctx, tx, listingID, models.ListingStatusActive, models.ListingStatusCancelled)
		if err != nil {
			return nil, apperr.Internal(err, "cancel listing")
		}
		if !ok {
			return nil, apperr.Conflict(apperr.ReasonAlreadyFinished, "auction already finished")
		}
		if err := s.audit.Log(ctx, tx, models.AuditLog{
			ActorUserID: &caller.ID,
			ActorType:   "user",
			Action:      "auction_cancelled_no_bids",
			EntityType:  "listing",
			EntityID:    &listingID,
			OldValue:    strPtr(models.ListingStatusActive),
			NewValue:    strPtr(models.ListingStatusCancelled),
		}); err != nil {
			return nil, apperr.Internal(err, "audit settlement")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, apperr.Internal(err, "commit settlement")
		}
		return nil, nil
	}

	// Read behind the row lock so the winner and amount cannot be
	// overtaken by a concurrent bid.
	top, err := s.listings.GetHighestBid(ctx, tx, listingID)
	if err != nil {
		return nil, apperr.Internal(err, "load highest bid")
	}

	ok, err := s.listings.CompareAndSetStatus(ctx, tx, listingID, models.ListingStatusActive, models.ListingStatusSold)
	if err != nil {
		return nil, apperr.Internal(err, "mark listing sold")
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ReasonAlreadyFinished, "auction already finished")
	}

	txn, err := createEscrowTransaction(ctx, tx, s.txns, s.payments, escrowTransactionParams{
		Listing:        listing,
		BuyerUserID:    top.BidderUserID,
		Amount:         top.Amount,
		FeeBPS:         s.sellerFeeBPS(ctx, listing.SellerUserID),
		PaymentTimeout: s.cfg.PaymentTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, tx, models.AuditLog{
		ActorUserID: &caller.ID,
		ActorType:   "user",
		Action:      "auction_settled",
		EntityType:  "listing",
		EntityID:    &listingID,
		OldValue:    strPtr(models.ListingStatusActive),
		NewValue:    strPtr(models.ListingStatusSold),
		Meta: map[string]any{
			"transaction_id": txn.ID.String(),
			"winning_bid":    top.Amount,
			"winner_user_id": top.BidderUserID.String(),
		},
	}); err != nil {
		return nil, apperr.Internal(err, "audit settlement")
	}

	if err := s.notify.Create(ctx, tx, &models.Notification{
		UserID:     top.BidderUserID,
		Kind:       models.NotifyAuctionWon,
		Title:      "You won the auction",
		Body:       "You won at " + formatAmount(top.Amount) + ", complete the payment to receive the item",
		EntityType: strPtr("transaction"),
		EntityID:   &txn.ID,
	}); err != nil {
		return nil, apperr.Internal(err, "notify winner")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "commit settlement")
	}

	_ = s.publisher.Publish(ctx, events.StreamListings, events.Event{
		Type: events.EventAuctionSettled,
		Payload: map[string]any{
			"listing_id":     listingID.String(),
			"transaction_id": txn.ID.String(),
			"amount":         top.Amount,
		},
	})
	return txn, nil
}

// sellerFeeBPS resolves the seller's fee tier, falling back to the
// platform default when the account carries no override.
func (s *ListingService) sellerFeeBPS(ctx context.Context, sellerID uuid.UUID) int {
	u, err := s.users.GetByID(ctx, sellerID)
	if err == nil && u.FeeRateBPS != nil {
		return *u.FeeRateBPS
	}
	return s.cfg.PlatformFeeBPS
}

func (s *ListingService) publishBid(ctx context.Context, bid *models.Bid) {
	_ = s.publisher.Publish(ctx, events.StreamListings, events.Event{
		Type: events.EventBidPlaced,
		Payload: map[string]any{
			"listing_id": bid.ListingID.String(),
			"bid_id":     bid.ID.String(),
			"amount":     bid.Amount,
		},
	})
}
