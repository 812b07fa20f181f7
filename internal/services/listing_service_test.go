package services

import (
	"testing"
	"time"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxBid = int64(1_000_000_000)

func activeAuction(seller uuid.UUID) *models.Listing {
	ends := time.Now().Add(time.Hour)
	return &models.Listing{
		ID:            uuid.New(),
		SellerUserID:  seller,
		ListingType:   models.ListingTypeAuction,
		Status:        models.ListingStatusActive,
		StartingBid:   1000,
		BidIncrement:  100,
		AuctionEndsAt: &ends,
	}
}

func TestValidateBid(t *testing.T) {
	seller := uuid.New()
	buyer := models.Caller{ID: uuid.New(), Role: models.RoleBuyer, KYCVerified: true}
	now := time.Now()

	t.Run("first bid must clear starting plus increment", func(t *testing.T) {
		l := activeAuction(seller)

		err := validateBid(l, buyer, 1100, testMaxBid, now)
		assert.NoError(t, err)

		err = validateBid(l, buyer, 1099, testMaxBid, now)
		require.Error(t, err)
		assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
		assert.Equal(t, apperr.ReasonBidTooLow, apperr.From(err).Reason)
	})

	t.Run("later bids clear current plus increment", func(t *testing.T) {
		l := activeAuction(seller)
		current := int64(5000)
		l.CurrentBid = &current

		assert.NoError(t, validateBid(l, buyer, 5100, testMaxBid, now))
		assert.Error(t, validateBid(l, buyer, 5050, testMaxBid, now))
	})

	t.Run("seller cannot bid on own listing", func(t *testing.T) {
		l := activeAuction(seller)
		own := models.Caller{ID: seller, Role: models.RoleSeller, KYCVerified: true}

		err := validateBid(l, own, 2000, testMaxBid, now)
		assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
	})

	t.Run("ended auction rejects bids", func(t *testing.T) {
		l := activeAuction(seller)
		past := now.Add(-time.Minute)
		l.AuctionEndsAt = &past

		err := validateBid(l, buyer, 2000, testMaxBid, now)
		require.Error(t, err)
		assert.Equal(t, apperr.ReasonAlreadyFinished, apperr.From(err).Reason)
	})

	t.Run("non-active listing rejects bids", func(t *testing.T) {
		l := activeAuction(seller)
		l.Status = models.ListingStatusSold

		err := validateBid(l, buyer, 2000, testMaxBid, now)
		require.Error(t, err)
		assert.Equal(t, apperr.ReasonAlreadyFinished, apperr.From(err).Reason)
	})

	t.Run("fixed listing cannot take bids", func(t *testing.T) {
		l := activeAuction(seller)
		l.ListingType = models.ListingTypeFixed

		err := validateBid(l, buyer, 2000, testMaxBid, now)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})

	t.Run("bid above platform ceiling", func(t *testing.T) {
		l := activeAuction(seller)

		err := validateBid(l, buyer, testMaxBid+1, testMaxBid, now)
		assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	})
}

func TestRequireActor(t *testing.T) {
	base := models.Caller{ID: uuid.New(), Role: models.RoleBuyer, KYCVerified: true}

	assert.NoError(t, requireActor(base, "place_bid"))

	suspended := base
	suspended.Suspended = true
	assert.True(t, apperr.IsCode(requireActor(suspended, "place_bid"), apperr.CodeForbidden))

	unverified := base
	unverified.KYCVerified = false
	assert.True(t, apperr.IsCode(requireActor(unverified, "place_bid"), apperr.CodeForbidden))

	admin := models.Caller{ID: uuid.New(), Role: models.RoleAdmin, KYCVerified: true}
	assert.Error(t, requireActor(admin, "place_bid"), "admins do not trade")
	assert.NoError(t, requireActor(admin, "resolve_dispute"))
}

func TestSettleDecision(t *testing.T) {
	seller := uuid.New()

	t.Run("bids settle to sold", func(t *testing.T) {
		l := activeAuction(seller)

		status, err := settleDecision(l, 3)
		require.NoError(t, err)
		assert.Equal(t, models.ListingStatusSold, status)
	})

	t.Run("no bids cancels the listing", func(t *testing.T) {
		l := activeAuction(seller)

		status, err := settleDecision(l, 0)
		require.NoError(t, err)
		assert.Equal(t, models.ListingStatusCancelled, status)
	})

	t.Run("second settlement fails once status left active", func(t *testing.T) {
		for _, status := range []string{
			models.ListingStatusSold,
			models.ListingStatusCancelled,
			models.ListingStatusDraft,
		} {
			l := activeAuction(seller)
			l.Status = status

			_, err := settleDecision(l, 3)
			require.Error(t, err, status)
			assert.Equal(t, apperr.ReasonAlreadyFinished, apperr.From(err).Reason)
		}
	})
}

func TestOutbidConflict(t *testing.T) {
	l := activeAuction(uuid.New())
	current := int64(70_000)
	l.CurrentBid = &current
	l.BidIncrement = 10_000

	err := outbidConflict(l)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
	assert.Equal(t, apperr.ReasonBidTooLow, apperr.From(err).Reason)
	assert.Contains(t, err.Error(), "current price is 70000")
	assert.Contains(t, err.Error(), "minimum is 80000")
}
