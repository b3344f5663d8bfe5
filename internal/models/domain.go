package models

import (
	"regexp"
	"strings"
)

// DomainState is the position of a tenant in the custom domain lifecycle.
type DomainState string

const (
	DomainStateUnset    DomainState = "unset"    // no custom domain
	DomainStatePending  DomainState = "pending"  // claimed, code issued, not verified
	DomainStateVerified DomainState = "verified" // TXT record matched
)

// DomainState derives the custom domain state from the tenant fields.
func (t *Tenant) DomainState() DomainState {
	switch {
	case t.CustomDomain == "":
		return DomainStateUnset
	case t.CustomDomainVerified:
		return DomainStateVerified
	default:
		return DomainStatePending
	}
}

// domainPattern accepts host names made of DNS labels ending in an alphabetic TLD.
var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// ValidateDomain validates a custom domain name and returns it normalized.
func ValidateDomain(domain string) (string, error) {
	domain = NormalizeKey(domain)
	if domain == "" {
		return "", &ValidationError{Field: "domain", Message: "domain is required"}
	}
	if len(domain) > 253 {
		return "", &ValidationError{Field: "domain", Message: "domain must be 253 characters or less"}
	}
	if strings.Contains(domain, "://") || strings.ContainsAny(domain, "/:@ ") {
		return "", &ValidationError{Field: "domain", Message: "domain must be a bare host name"}
	}
	if !domainPattern.MatchString(domain) {
		return "", &ValidationError{Field: "domain", Message: "invalid domain format"}
	}
	return domain, nil
}

// IsUnderDomain reports whether host equals base or is one of its subdomains.
func IsUnderDomain(host, base string) bool {
	host = NormalizeKey(host)
	base = NormalizeKey(base)
	if base == "" {
		return false
	}
	return host == base || strings.HasSuffix(host, "."+base)
}
