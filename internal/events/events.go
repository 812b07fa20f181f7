package events

import "context"

// Event types
const (
	EventBidPlaced                = "bid_placed"
	EventAuctionSettled           = "auction_settled"
	EventTransactionStatusChanged = "transaction_status_changed"
	EventPaymentReceived          = "payment_received"
	EventDisputeOpened            = "dispute_opened"
	EventDisputeResolved          = "dispute_resolved"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
