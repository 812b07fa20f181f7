package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusExpired = "expired"
)

// Payment is one charge attempt against a transaction. A transaction
// may accumulate several attempts if earlier ones expire, but at most
// one may ever be paid.
type Payment struct {
	ID                uuid.UUID  `json:"id"`
	TransactionID     uuid.UUID  `json:"transaction_id"`
	ExternalGatewayID string     `json:"external_gateway_id"`
	Method            *string    `json:"method,omitempty"`
	Amount            int64      `json:"amount"`
	Status            string     `json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Gateway event statuses, as delivered on the webhook.
const (
	GatewayStatusPending = "PENDING"
	GatewayStatusPaid    = "PAID"
	GatewayStatusSettled = "SETTLED"
	GatewayStatusExpired = "EXPIRED"
)
