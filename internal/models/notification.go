package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds
const (
	NotifyOutbid               = "outbid"
	NotifyNewBid               = "new_bid"
	NotifyAuctionWon           = "auction_won"
	NotifyTransactionCreated   = "transaction_created"
	NotifyPaymentConfirmed     = "payment_confirmed"
	NotifyPaymentExpired       = "payment_expired"
	NotifyItemTransferred      = "item_transferred"
	NotifyEscrowReleased       = "escrow_released"
	NotifyTransactionCompleted = "transaction_completed"
	NotifyDisputeOpened        = "dispute_opened"
	NotifyDisputeResolved      = "dispute_resolved"
)

// Notification is a durable user-facing record; delivery to push/email
// channels is an external concern, only creation happens here.
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	EntityType *string    `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
