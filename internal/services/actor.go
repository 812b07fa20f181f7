package services

import (
	"strconv"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/models"
	"github.com/gametrade/backend/internal/rbac"
)

// requireActor gates an operation on role permission plus the KYC and
// suspension flags carried in the caller identity.
func requireActor(caller models.Caller, permission string) error {
	if !rbac.HasPermission(caller.Role, permission) {
		return apperr.Forbidden("role %q cannot perform this action", caller.Role)
	}
	if caller.Suspended {
		return apperr.Forbidden("account is suspended")
	}
	if !caller.KYCVerified {
		return apperr.Forbidden("identity verification required")
	}
	return nil
}

func strPtr(s string) *string { return &s }

func formatAmount(v int64) string { return strconv.FormatInt(v, 10) }
