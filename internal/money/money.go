// Package money holds the platform fee arithmetic. All amounts are
// integer minor units; fee rates are basis points so the split stays
// exact without decimal types.
package money

import "github.com/gametrade/backend/internal/apperr"

type Breakdown struct {
	Fee          int64 `json:"fee"`
	SellerPayout int64 `json:"seller_payout"`
}

// Split computes the platform fee and seller payout for a gross amount.
// fee = floor(amount * feeBPS / 10000), payout = amount - fee, so
// Fee + SellerPayout == amount for every positive amount.
func Split(amount int64, feeBPS int) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, apperr.Validation("amount must be positive")
	}
	if feeBPS < 0 || feeBPS > 10000 {
		return Breakdown{}, apperr.Validation("fee rate out of range")
	}
	fee := amount * int64(feeBPS) / 10000
	return Breakdown{Fee: fee, SellerPayout: amount - fee}, nil
}
