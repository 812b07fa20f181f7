package models

import (
	"testing"
	"time"
)

func TestMinNextBid(t *testing.T) {
	bid := func(v int64) *int64 { return &v }

	tests := []struct {
		name     string
		listing  Listing
		expected int64
	}{
		{"no bids yet", Listing{StartingBid: 1000, BidIncrement: 100}, 1100},
		{"current bid above starting", Listing{StartingBid: 1000, CurrentBid: bid(2000), BidIncrement: 100}, 2100},
		{"current bid below starting", Listing{StartingBid: 5000, CurrentBid: bid(2000), BidIncrement: 100}, 5100},
		{"zero increment", Listing{StartingBid: 1000, CurrentBid: bid(1500), BidIncrement: 0}, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.listing.MinNextBid(); got != tt.expected {
				t.Errorf("MinNextBid() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAuctionEnded(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		endsAt   *time.Time
		expected bool
	}{
		{"no deadline", nil, false},
		{"deadline passed", &past, true},
		{"deadline ahead", &future, false},
		{"exactly at deadline", &now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Listing{AuctionEndsAt: tt.endsAt}
			if got := l.AuctionEnded(now); got != tt.expected {
				t.Errorf("AuctionEnded() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSaleAmount(t *testing.T) {
	winning := int64(7500)

	auction := Listing{ListingType: ListingTypeAuction, Price: 0, StartingBid: 5000, CurrentBid: &winning}
	if got := auction.SaleAmount(); got != winning {
		t.Errorf("auction SaleAmount() = %d, want %d", got, winning)
	}

	fixed := Listing{ListingType: ListingTypeFixed, Price: 3000}
	if got := fixed.SaleAmount(); got != 3000 {
		t.Errorf("fixed SaleAmount() = %d, want 3000", got)
	}
}
