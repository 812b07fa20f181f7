package rbac

import "github.com/gametrade/backend/internal/models"

// Permission constants
const (
	PermPlaceBid       = "place_bid"
	PermPurchase       = "purchase"
	PermCreateListing  = "create_listing"
	PermFinishAuction  = "finish_auction"
	PermTransferItem   = "transfer_item"
	PermConfirmReceipt = "confirm_receipt"
	PermOpenDispute    = "open_dispute"
	PermResolveDispute = "resolve_dispute"
)

// RolePermissions defines what each role can do. Sellers are buyers
// with extra listing-side rights; admins only arbitrate.
var RolePermissions = map[string][]string{
	models.RoleBuyer: {
		PermPlaceBid, PermPurchase, PermConfirmReceipt, PermOpenDispute,
	},
	models.RoleSeller: {
		PermPlaceBid, PermPurchase, PermConfirmReceipt, PermOpenDispute,
		PermCreateListing, PermFinishAuction, PermTransferItem,
	},
	models.RoleAdmin: {
		PermResolveDispute,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
