package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction statuses
const (
	TxStatusPendingPayment  = "pending_payment"
	TxStatusPaid            = "paid"
	TxStatusItemTransferred = "item_transferred"
	TxStatusCompleted       = "completed"
	TxStatusDisputed        = "disputed"
	TxStatusCancelled       = "cancelled"
	TxStatusRefunded        = "refunded"
)

// Valid state transitions: from -> []to. Escrow lifecycle:
// payment confirmation moves the transaction forward, dispute
// resolution decides between refund and completion.
var ValidTxTransitions = map[string][]string{
	TxStatusPendingPayment:  {TxStatusPaid, TxStatusCancelled},
	TxStatusPaid:            {TxStatusItemTransferred},
	TxStatusItemTransferred: {TxStatusCompleted, TxStatusDisputed},
	TxStatusDisputed:        {TxStatusRefunded, TxStatusCompleted},
	TxStatusCompleted:       {},
	TxStatusCancelled:       {},
	TxStatusRefunded:        {},
}

func IsValidTxTransition(from, to string) bool {
	allowed, ok := ValidTxTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalTxStatus(status string) bool {
	allowed, ok := ValidTxTransitions[status]
	return ok && len(allowed) == 0
}

type Transaction struct {
	ID                   uuid.UUID  `json:"id"`
	ListingID            uuid.UUID  `json:"listing_id"`
	BuyerUserID          uuid.UUID  `json:"buyer_user_id"`
	SellerUserID         uuid.UUID  `json:"seller_user_id"`
	Status               string     `json:"status"`
	Amount               int64      `json:"amount"`
	PlatformFeeAmount    int64      `json:"platform_fee_amount"`
	SellerPayoutAmount   int64      `json:"seller_payout_amount"`
	VerificationDeadline *time.Time `json:"verification_deadline,omitempty"`
	ItemTransferredAt    *time.Time `json:"item_transferred_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TransactionWithListing embeds Transaction and adds listing info to
// avoid N+1 queries on list endpoints.
type TransactionWithListing struct {
	Transaction
	ListingTitle *string `json:"listing_title,omitempty"`
	ListingType  *string `json:"listing_type,omitempty"`
}
