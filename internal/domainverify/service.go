// Package domainverify implements custom domain claims proven through a DNS
// TXT record holding a one-time verification code.
package domainverify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/storefront/internal/metrics"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/tenantcache"
)

// Service errors.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrDomainTaken     = errors.New("domain is already in use by another tenant")
	ErrNoDomainClaimed = errors.New("no custom domain claimed")
	// ErrClaimChanged means the claim was replaced or removed while its DNS
	// check ran. Nothing was recorded.
	ErrClaimChanged = errors.New("custom domain claim changed during verification")
)

// CodePrefix starts every verification code.
const CodePrefix = "verify-"

// DefaultLookupTimeout bounds one DNS check.
const DefaultLookupTimeout = 5 * time.Second

// Challenge tells the tenant owner which TXT record proves control of a domain.
type Challenge struct {
	Domain           string `json:"domain"`
	VerificationCode string `json:"verificationCode"`
	RecordType       string `json:"recordType"`
	RecordName       string `json:"recordName"`
	RecordValue      string `json:"recordValue"`
	Instructions     string `json:"instructions"`
}

// StatusResult is the custom domain state of a tenant. DNSCheck is set only
// while a claim is pending.
type StatusResult struct {
	CustomDomain         string    `json:"customDomain"`
	CustomDomainVerified bool      `json:"customDomainVerified"`
	VerificationCode     string    `json:"verificationCode,omitempty"`
	DNSCheck             *DNSCheck `json:"dnsCheck,omitempty"`
}

// VerifyResult is the outcome of a verification attempt.
type VerifyResult struct {
	CustomDomain         string   `json:"customDomain"`
	CustomDomainVerified bool     `json:"customDomainVerified"`
	Message              string   `json:"message"`
	DNSCheck             DNSCheck `json:"dnsCheck"`
}

// Service runs the claim, status, verify and remove flows.
type Service struct {
	tenants  store.TenantStore
	cache    tenantcache.Cache
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics

	baseDomain    string
	lookupTimeout time.Duration
	now           func() time.Time
	newCode       func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithBaseDomain rejects claims of the platform domain and its subdomains.
func WithBaseDomain(domain string) Option {
	return func(s *Service) { s.baseDomain = models.NormalizeKey(domain) }
}

// WithLookupTimeout bounds each DNS check.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

// WithMetrics records DNS check outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

// NewService creates a domain verification service.
func NewService(tenants store.TenantStore, cache tenantcache.Cache, resolver Resolver, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		tenants:       tenants,
		cache:         cache,
		resolver:      resolver,
		logger:        logger.With("component", "domainverify"),
		lookupTimeout: DefaultLookupTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		newCode:       GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode returns a fresh verification code: CodePrefix and 32 hex digits.
func GenerateCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return CodePrefix + hex.EncodeToString(b), nil
}

func (s *Service) tenant(ctx context.Context, subdomain string) (*models.Tenant, error) {
	t, err := s.tenants.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	if t == nil {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// Claim binds domain to the tenant as a pending claim with a new code.
// Claiming the tenant's current domain again reissues the code and resets
// verification.
func (s *Service) Claim(ctx context.Context, subdomain, domain string) (*Challenge, error) {
	t, err := s.tenant(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	domain, err = models.ValidateDomain(domain)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDomain, ve.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	if models.IsUnderDomain(domain, s.baseDomain) {
		return nil, fmt.Errorf("%w: %s belongs to the platform", ErrInvalidDomain, domain)
	}

	holder, err := s.tenants.GetByCustomDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("checking domain holder: %w", err)
	}
	if holder != nil && holder.ID != t.ID {
		return nil, ErrDomainTaken
	}

	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	verified := false
	issuedAt := s.now()
	updated, err := s.tenants.Update(ctx, t.Subdomain, models.TenantPatch{
		CustomDomain:                 &domain,
		CustomDomainVerified:         &verified,
		CustomDomainVerificationCode: &code,
		CustomDomainIssuedAt:         &issuedAt,
	})
	if errors.Is(err, store.ErrDomainTaken) {
		return nil, ErrDomainTaken
	}
	if err != nil {
		return nil, fmt.Errorf("saving claim: %w", err)
	}
	if updated == nil {
		return nil, ErrTenantNotFound
	}

	// The previous binding, if any, is no longer verified.
	if t.CustomDomain != "" {
		s.cache.RemoveCustomDomain(t.CustomDomain)
	}

	s.logger.Info("custom domain claimed", "subdomain", t.Subdomain, "domain", domain)

	return &Challenge{
		Domain:           domain,
		VerificationCode: code,
		RecordType:       "TXT",
		RecordName:       domain,
		RecordValue:      code,
		Instructions: fmt.Sprintf(
			"Add a TXT record for %s with the exact value %s, then verify the domain.",
			domain, code,
		),
	}, nil
}

// Status reports the tenant's custom domain state. A pending claim is checked
// against DNS without changing any state.
func (s *Service) Status(ctx context.Context, subdomain string) (*StatusResult, error) {
	t, err := s.tenant(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		CustomDomain:         t.CustomDomain,
		CustomDomainVerified: t.CustomDomainVerified,
		VerificationCode:     t.CustomDomainVerificationCode,
	}
	if t.DomainState() == models.DomainStatePending && t.CustomDomainVerificationCode != "" {
		check := s.check(ctx, t.CustomDomain, t.CustomDomainVerificationCode)
		result.DNSCheck = &check
	}
	return result, nil
}

// Verify checks DNS and records the outcome. A match marks the domain
// verified and makes it routable. A definitive miss revokes verification.
// Timeouts and lookup failures leave the stored state as it is.
func (s *Service) Verify(ctx context.Context, subdomain string) (*VerifyResult, error) {
	t, err := s.tenant(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	if t.CustomDomain == "" || t.CustomDomainVerificationCode == "" {
		return nil, ErrNoDomainClaimed
	}

	domain, code := t.CustomDomain, t.CustomDomainVerificationCode
	check := s.check(ctx, domain, code)

	verified := t.CustomDomainVerified
	if !check.Reason.Transient() {
		verified = check.OK
		// The outcome only counts for the claim that was checked.
		updated, err := s.tenants.Update(ctx, t.Subdomain, models.TenantPatch{
			CustomDomainVerified:   &verified,
			ExpectCustomDomain:     &domain,
			ExpectVerificationCode: &code,
		})
		if errors.Is(err, store.ErrPreconditionFailed) {
			s.logger.Warn("custom domain claim changed during verification",
				"subdomain", t.Subdomain,
				"domain", domain,
			)
			return nil, ErrClaimChanged
		}
		if err != nil {
			return nil, fmt.Errorf("saving verification: %w", err)
		}
		if updated == nil {
			return nil, ErrTenantNotFound
		}
	}

	result := &VerifyResult{
		CustomDomain:         t.CustomDomain,
		CustomDomainVerified: verified,
		Message:              check.Message,
		DNSCheck:             check,
	}

	switch {
	case check.OK:
		s.cache.Put(t.Subdomain)
		s.cache.PutCustomDomain(t.CustomDomain, t.Subdomain)
		result.Message = "Domain verified."
		if !t.CustomDomainVerified {
			s.logger.Info("custom domain verified", "subdomain", t.Subdomain, "domain", t.CustomDomain)
		}
	case !verified:
		s.cache.RemoveCustomDomain(t.CustomDomain)
		if t.CustomDomainVerified {
			s.logger.Warn("custom domain verification revoked",
				"subdomain", t.Subdomain,
				"domain", t.CustomDomain,
				"reason", check.Reason,
			)
		}
	}
	return result, nil
}

// Remove clears the tenant's custom domain. The tenant stays reachable by
// subdomain. Removing when nothing is claimed succeeds.
func (s *Service) Remove(ctx context.Context, subdomain string) error {
	t, err := s.tenant(ctx, subdomain)
	if err != nil {
		return err
	}

	updated, err := s.tenants.Update(ctx, t.Subdomain, models.TenantPatch{ClearCustomDomain: true})
	if err != nil {
		return fmt.Errorf("clearing custom domain: %w", err)
	}
	if updated == nil {
		return ErrTenantNotFound
	}

	s.cache.Remove(t.Subdomain)
	s.cache.Put(t.Subdomain)

	if t.CustomDomain != "" {
		s.logger.Info("custom domain removed", "subdomain", t.Subdomain, "domain", t.CustomDomain)
	}
	return nil
}

func (s *Service) check(ctx context.Context, domain, code string) DNSCheck {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	check := CheckTXTRecord(ctx, s.resolver, domain, code)
	s.metrics.DNSCheck(string(check.Reason))
	if !check.OK {
		s.logger.Debug("dns check did not match", "domain", domain, "reason", check.Reason)
	}
	return check
}
