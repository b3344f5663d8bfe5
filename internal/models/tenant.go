// Package models provides data structures for the storefront platform.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Tenant is one hosted website, addressed by its subdomain and optionally by a
// verified custom domain.
type Tenant struct {
	ID          string `json:"id"`
	Subdomain   string `json:"subdomain"` // unique, immutable after creation
	Name        string `json:"name"`
	OwnerUserID string `json:"owner_user_id"`

	CustomDomain                 string     `json:"custom_domain,omitempty"`
	CustomDomainVerified         bool       `json:"custom_domain_verified"`
	CustomDomainVerificationCode string     `json:"-"`
	CustomDomainIssuedAt         *time.Time `json:"custom_domain_issued_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the tenant.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	if t.CustomDomainIssuedAt != nil {
		issued := *t.CustomDomainIssuedAt
		c.CustomDomainIssuedAt = &issued
	}
	return &c
}

// TenantPatch is a partial update of a tenant. Nil fields are left untouched.
type TenantPatch struct {
	Name                         *string
	CustomDomain                 *string
	CustomDomainVerified         *bool
	CustomDomainVerificationCode *string
	CustomDomainIssuedAt         *time.Time

	// ClearCustomDomain resets every custom domain field and wins over the fields above.
	ClearCustomDomain bool

	// ExpectCustomDomain and ExpectVerificationCode are preconditions. When
	// set, the store applies the patch only if the stored values still equal
	// them, under the same lock as the write.
	ExpectCustomDomain     *string
	ExpectVerificationCode *string
}

// Satisfied reports whether t meets the patch preconditions.
func (p TenantPatch) Satisfied(t *Tenant) bool {
	if p.ExpectCustomDomain != nil && NormalizeKey(*p.ExpectCustomDomain) != t.CustomDomain {
		return false
	}
	if p.ExpectVerificationCode != nil && *p.ExpectVerificationCode != t.CustomDomainVerificationCode {
		return false
	}
	return true
}

// Apply applies the patch to t in place.
func (p TenantPatch) Apply(t *Tenant) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.ClearCustomDomain {
		t.CustomDomain = ""
		t.CustomDomainVerified = false
		t.CustomDomainVerificationCode = ""
		t.CustomDomainIssuedAt = nil
		return
	}
	if p.CustomDomain != nil {
		t.CustomDomain = *p.CustomDomain
	}
	if p.CustomDomainVerified != nil {
		t.CustomDomainVerified = *p.CustomDomainVerified
	}
	if p.CustomDomainVerificationCode != nil {
		t.CustomDomainVerificationCode = *p.CustomDomainVerificationCode
	}
	if p.CustomDomainIssuedAt != nil {
		issued := *p.CustomDomainIssuedAt
		t.CustomDomainIssuedAt = &issued
	}
}

// ValidationError describes an invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ErrReservedSubdomain is returned for subdomains the platform keeps for itself.
var ErrReservedSubdomain = errors.New("subdomain is reserved")

// subdomainPattern is a DNS label: lowercase letters, digits and inner hyphens.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// reservedSubdomains can never be claimed by a tenant; they collide with
// platform hosts or with reserved first path segments.
var reservedSubdomains = map[string]bool{
	"www":     true,
	"admin":   true,
	"api":     true,
	"user":    true,
	"static":  true,
	"assets":  true,
	"metrics": true,
	"health":  true,
}

// IsReservedSubdomain reports whether s is kept by the platform.
func IsReservedSubdomain(s string) bool {
	return reservedSubdomains[NormalizeKey(s)]
}

// ValidateSubdomain validates a tenant subdomain.
func ValidateSubdomain(subdomain string) error {
	if subdomain == "" {
		return &ValidationError{Field: "subdomain", Message: "subdomain is required"}
	}
	if len(subdomain) > 63 {
		return &ValidationError{Field: "subdomain", Message: "subdomain must be 63 characters or less"}
	}
	if !subdomainPattern.MatchString(subdomain) {
		return &ValidationError{
			Field:   "subdomain",
			Message: "subdomain must contain only lowercase letters, numbers, and hyphens",
		}
	}
	if reservedSubdomains[subdomain] {
		return ErrReservedSubdomain
	}
	return nil
}

// NormalizeKey lower-cases a routing key and strips surrounding space and a
// trailing root dot.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.TrimSuffix(key, ".")
}
