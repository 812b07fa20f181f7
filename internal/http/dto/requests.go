package dto

type CreateListingRequest struct {
	Title         string  `json:"title"`
	ListingType   string  `json:"listing_type"`
	Price         int64   `json:"price"`
	StartingBid   int64   `json:"starting_bid"`
	BidIncrement  int64   `json:"bid_increment"`
	AuctionEndsAt *string `json:"auction_ends_at,omitempty"`
}

type PlaceBidRequest struct {
	Amount int64 `json:"amount"`
}

type CreateTransactionRequest struct {
	ListingID     string  `json:"listing_id"`
	PaymentMethod *string `json:"payment_method,omitempty"`
}

type CreateDisputeRequest struct {
	TransactionID string `json:"transaction_id"`
	Category      string `json:"category"`
	Description   string `json:"description"`
}

type ResolveDisputeRequest struct {
	Resolution          string `json:"resolution"`
	PartialRefundAmount *int64 `json:"partial_refund_amount,omitempty"`
}

type ProvisionUserRequest struct {
	Username    string `json:"username"`
	Role        string `json:"role"`
	KYCVerified bool   `json:"kyc_verified"`
	FeeRateBPS  *int   `json:"fee_rate_bps,omitempty"`
}

// GatewayWebhookRequest mirrors the payment provider's callback body.
type GatewayWebhookRequest struct {
	ID            string  `json:"id"`
	ExternalID    string  `json:"external_id"`
	Status        string  `json:"status"`
	PaidAmount    *int64  `json:"paid_amount,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	PaidAt        *string `json:"paid_at,omitempty"`
}
