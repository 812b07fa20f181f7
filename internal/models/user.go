package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"` // buyer/seller/admin
	KYCVerified  bool      `json:"kyc_verified"`
	Suspended    bool      `json:"suspended"`
	FeeRateBPS   *int      `json:"fee_rate_bps,omitempty"` // tier override, nil = platform default
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Caller is the identity the auth middleware attaches to a request.
// It is issued by the external auth service; this core only consumes it.
type Caller struct {
	ID          uuid.UUID
	Role        string
	KYCVerified bool
	Suspended   bool
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
