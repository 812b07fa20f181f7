package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute statuses
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
)

// Dispute resolutions
const (
	ResolutionFullRefund    = "full_refund"
	ResolutionPartialRefund = "partial_refund"
	ResolutionNoRefund      = "no_refund"
)

// Dispute categories
const (
	DisputeCategoryNotAsDescribed  = "not_as_described"
	DisputeCategoryNotDelivered    = "not_delivered"
	DisputeCategoryAccountRecalled = "account_recalled"
	DisputeCategoryOther           = "other"
)

func IsValidDisputeCategory(c string) bool {
	switch c {
	case DisputeCategoryNotAsDescribed, DisputeCategoryNotDelivered,
		DisputeCategoryAccountRecalled, DisputeCategoryOther:
		return true
	}
	return false
}

func IsValidResolution(r string) bool {
	switch r {
	case ResolutionFullRefund, ResolutionPartialRefund, ResolutionNoRefund:
		return true
	}
	return false
}

// Dispute is unique per transaction; resolving it is terminal for both
// the dispute and the transaction.
type Dispute struct {
	ID                  uuid.UUID  `json:"id"`
	TransactionID       uuid.UUID  `json:"transaction_id"`
	InitiatorUserID     uuid.UUID  `json:"initiator_user_id"`
	Category            string     `json:"category"`
	Description         string     `json:"description"`
	Status              string     `json:"status"`
	Resolution          *string    `json:"resolution,omitempty"`
	PartialRefundAmount *int64     `json:"partial_refund_amount,omitempty"`
	ResolvedByUserID    *uuid.UUID `json:"resolved_by_user_id,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
