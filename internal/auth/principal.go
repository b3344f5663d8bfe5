package auth

import "github.com/narvanalabs/storefront/internal/models"

// Principal is an authenticated caller.
type Principal interface {
	// ID is the user ID of the caller.
	ID() string
	// Email is the caller's email, possibly empty.
	Email() string
	// Role is the platform role of the caller.
	Role() Role
	// CanManageTenant reports whether the caller may change t, including its
	// custom domain.
	CanManageTenant(t *models.Tenant) bool
}

// AdminPrincipal is a platform administrator. It manages every tenant.
type AdminPrincipal struct {
	UserID    string
	UserEmail string
}

func (p AdminPrincipal) ID() string    { return p.UserID }
func (p AdminPrincipal) Email() string { return p.UserEmail }
func (p AdminPrincipal) Role() Role    { return RoleAdmin }

// CanManageTenant is true for any existing tenant.
func (p AdminPrincipal) CanManageTenant(t *models.Tenant) bool {
	return t != nil
}

// OwnerPrincipal is a tenant owner. It manages only tenants it owns.
type OwnerPrincipal struct {
	UserID    string
	UserEmail string
}

func (p OwnerPrincipal) ID() string    { return p.UserID }
func (p OwnerPrincipal) Email() string { return p.UserEmail }
func (p OwnerPrincipal) Role() Role    { return RoleOwner }

// CanManageTenant is true when the tenant's owner is this user.
func (p OwnerPrincipal) CanManageTenant(t *models.Tenant) bool {
	return t != nil && p.UserID != "" && t.OwnerUserID == p.UserID
}

// PrincipalFromClaims maps validated claims to their principal.
func PrincipalFromClaims(c *Claims) Principal {
	if c.Role == RoleAdmin {
		return AdminPrincipal{UserID: c.UserID, UserEmail: c.Email}
	}
	return OwnerPrincipal{UserID: c.UserID, UserEmail: c.Email}
}

var (
	_ Principal = AdminPrincipal{}
	_ Principal = OwnerPrincipal{}
)
