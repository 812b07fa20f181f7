package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing types
const (
	ListingTypeFixed   = "fixed"
	ListingTypeAuction = "auction"
)

// Listing statuses
const (
	ListingStatusDraft     = "draft"
	ListingStatusPending   = "pending"
	ListingStatusActive    = "active"
	ListingStatusSold      = "sold"
	ListingStatusCancelled = "cancelled"
)

type Listing struct {
	ID           uuid.UUID `json:"id"`
	SellerUserID uuid.UUID `json:"seller_user_id"`
	Title        string    `json:"title"`
	ListingType  string    `json:"listing_type"` // fixed / auction
	Status       string    `json:"status"`
	Price        int64     `json:"price"` // fixed-price amount, minor units

	// Auction fields, zero-valued for fixed listings.
	StartingBid   int64      `json:"starting_bid"`
	CurrentBid    *int64     `json:"current_bid,omitempty"`
	BidIncrement  int64      `json:"bid_increment"`
	AuctionEndsAt *time.Time `json:"auction_ends_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Listing) IsAuction() bool {
	return l.ListingType == ListingTypeAuction
}

// AuctionEnded reports whether the auction deadline has passed. Deadlines
// are passive: nothing fires at expiry, callers compare against now.
func (l *Listing) AuctionEnded(now time.Time) bool {
	return l.AuctionEndsAt != nil && !now.Before(*l.AuctionEndsAt)
}

// MinNextBid is the lowest amount the next bid may carry:
// max(current_bid, starting_bid) + bid_increment.
func (l *Listing) MinNextBid() int64 {
	base := l.StartingBid
	if l.CurrentBid != nil && *l.CurrentBid > base {
		base = *l.CurrentBid
	}
	return base + l.BidIncrement
}

// SaleAmount is what a committed buyer pays: the winning bid for
// auctions, the sticker price otherwise.
func (l *Listing) SaleAmount() int64 {
	if l.IsAuction() && l.CurrentBid != nil {
		return *l.CurrentBid
	}
	return l.Price
}

// Bid rows are immutable once created.
type Bid struct {
	ID           uuid.UUID `json:"id"`
	ListingID    uuid.UUID `json:"listing_id"`
	BidderUserID uuid.UUID `json:"bidder_user_id"`
	Amount       int64     `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}
