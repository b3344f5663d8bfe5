package domainverify

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store/memory"
	"github.com/narvanalabs/storefront/internal/tenantcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	tenants  *memory.TenantStore
	cache    *tenantcache.MemoryCache
	resolver *fakeResolver
	svc      *Service
}

func newTestEnv(t *testing.T, subdomains ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		tenants:  memory.NewTenantStore(),
		cache:    tenantcache.NewMemoryCache(nil),
		resolver: newFakeResolver(),
	}
	for _, sub := range subdomains {
		require.NoError(t, env.tenants.Create(context.Background(), &models.Tenant{Subdomain: sub, OwnerUserID: "owner-" + sub}))
		env.cache.Put(sub)
	}
	env.svc = NewService(env.tenants, env.cache, env.resolver, nil, WithBaseDomain("example.com"))
	return env
}

func (e *testEnv) tenant(t *testing.T, sub string) *models.Tenant {
	t.Helper()
	tenant, err := e.tenants.GetBySubdomain(context.Background(), sub)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	return tenant
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, `^verify-[0-9a-f]{32}$`, code)

	other, err := GenerateCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestClaim(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "Shop.COM")
	require.NoError(t, err)
	assert.Equal(t, "shop.com", challenge.Domain)
	assert.Equal(t, "TXT", challenge.RecordType)
	assert.Equal(t, "shop.com", challenge.RecordName)
	assert.Equal(t, challenge.VerificationCode, challenge.RecordValue)
	assert.Contains(t, challenge.Instructions, challenge.VerificationCode)

	tenant := env.tenant(t, "shop1")
	assert.Equal(t, "shop.com", tenant.CustomDomain)
	assert.False(t, tenant.CustomDomainVerified)
	assert.Equal(t, challenge.VerificationCode, tenant.CustomDomainVerificationCode)
	assert.NotNil(t, tenant.CustomDomainIssuedAt)
	assert.False(t, env.cache.ContainsCustomDomain("shop.com"), "pending claims are not routable")
}

func TestClaimRejections(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	for _, domain := range []string{"", "not a domain", "https://shop.com", "shop", "example.com", "shop.example.com"} {
		_, err := env.svc.Claim(ctx, "shop1", domain)
		assert.ErrorIs(t, err, ErrInvalidDomain, domain)
	}

	_, err := env.svc.Claim(ctx, "missing", "shop.com")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

// Once tenant A holds a domain, claimed or verified, B's claim conflicts and
// A's binding is unchanged.
func TestClaimConflictProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("second tenant cannot take a held domain", prop.ForAll(
		func(label string, verify bool) bool {
			env := newTestEnv(t, "a", "b")
			ctx := context.Background()
			domain := label + ".com"

			challenge, err := env.svc.Claim(ctx, "a", domain)
			if err != nil {
				return false
			}
			if verify {
				env.resolver.records[domain] = [][]string{{challenge.VerificationCode}}
				if res, err := env.svc.Verify(ctx, "a"); err != nil || !res.CustomDomainVerified {
					return false
				}
			}
			before := env.tenant(t, "a")

			if _, err := env.svc.Claim(ctx, "b", domain); err != ErrDomainTaken {
				return false
			}

			after := env.tenant(t, "a")
			b := env.tenant(t, "b")
			return after.CustomDomain == before.CustomDomain &&
				after.CustomDomainVerified == before.CustomDomainVerified &&
				after.CustomDomainVerificationCode == before.CustomDomainVerificationCode &&
				b.CustomDomain == ""
		},
		gen.RegexMatch("[a-z][a-z0-9]{2,10}"),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestReclaimReissuesCode(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	first, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{first.VerificationCode}}
	_, err = env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)
	require.True(t, env.cache.ContainsCustomDomain("shop.com"))

	second, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.VerificationCode, second.VerificationCode)

	tenant := env.tenant(t, "shop1")
	assert.False(t, tenant.CustomDomainVerified)
	assert.False(t, env.cache.ContainsCustomDomain("shop.com"))
}

func TestStatusDoesNotMutate(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	status, err := env.svc.Status(ctx, "shop1")
	require.NoError(t, err)
	assert.Empty(t, status.CustomDomain)
	assert.Nil(t, status.DNSCheck)
	assert.Zero(t, env.resolver.calls)

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{challenge.VerificationCode}}

	status, err = env.svc.Status(ctx, "shop1")
	require.NoError(t, err)
	require.NotNil(t, status.DNSCheck)
	assert.True(t, status.DNSCheck.OK)
	assert.False(t, status.CustomDomainVerified)
	assert.False(t, env.tenant(t, "shop1").CustomDomainVerified)
	assert.False(t, env.cache.ContainsCustomDomain("shop.com"))
}

func TestVerifyRequiresClaim(t *testing.T) {
	env := newTestEnv(t, "shop1")

	_, err := env.svc.Verify(context.Background(), "shop1")
	assert.ErrorIs(t, err, ErrNoDomainClaimed)

	_, err = env.svc.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestVerifyIdempotent(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{challenge.VerificationCode}}

	for i := 0; i < 3; i++ {
		res, err := env.svc.Verify(ctx, "shop1")
		require.NoError(t, err)
		assert.True(t, res.CustomDomainVerified)
		assert.True(t, res.DNSCheck.OK)

		tenant := env.tenant(t, "shop1")
		assert.True(t, tenant.CustomDomainVerified)
		assert.Equal(t, challenge.VerificationCode, tenant.CustomDomainVerificationCode)
	}
}

func TestVerifyTransientFailureKeepsVerification(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{challenge.VerificationCode}}
	_, err = env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)

	env.resolver.errs["shop.com"] = ErrDNSTimeout
	res, err := env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)
	assert.False(t, res.DNSCheck.OK)
	assert.Equal(t, ReasonTimeout, res.DNSCheck.Reason)
	assert.True(t, res.CustomDomainVerified)
	assert.True(t, env.cache.ContainsCustomDomain("shop.com"))
}

func TestVerifyRevokesOnMismatch(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{challenge.VerificationCode}}
	_, err = env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)

	env.resolver.records["shop.com"] = [][]string{{"something-else"}}
	res, err := env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)
	assert.False(t, res.CustomDomainVerified)
	assert.Equal(t, ReasonMismatch, res.DNSCheck.Reason)
	assert.False(t, env.tenant(t, "shop1").CustomDomainVerified)
	assert.False(t, env.cache.ContainsCustomDomain("shop.com"))
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t, "shop1")
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	env.resolver.records["shop.com"] = [][]string{{challenge.VerificationCode}}
	_, err = env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Remove(ctx, "shop1"))

	tenant := env.tenant(t, "shop1")
	assert.Empty(t, tenant.CustomDomain)
	assert.False(t, tenant.CustomDomainVerified)
	assert.Empty(t, tenant.CustomDomainVerificationCode)
	assert.False(t, env.cache.ContainsCustomDomain("shop.com"))
	assert.True(t, env.cache.Contains("shop1"))

	require.NoError(t, env.svc.Remove(ctx, "shop1"), "removing twice succeeds")
	assert.ErrorIs(t, env.svc.Remove(ctx, "missing"), ErrTenantNotFound)
}

// Claim, pending status, DNS record added, verify, then the domain is routable.
func TestCustomDomainFlow(t *testing.T) {
	env := newTestEnv(t, "shop1")
	env.svc.newCode = func() (string, error) { return "verify-abc123", nil }
	ctx := context.Background()

	challenge, err := env.svc.Claim(ctx, "shop1", "shop.com")
	require.NoError(t, err)
	require.Equal(t, "verify-abc123", challenge.VerificationCode)

	status, err := env.svc.Status(ctx, "shop1")
	require.NoError(t, err)
	assert.False(t, status.CustomDomainVerified)
	require.NotNil(t, status.DNSCheck)
	assert.False(t, status.DNSCheck.OK)
	assert.Equal(t, ReasonNotFound, status.DNSCheck.Reason)

	env.resolver.records["shop.com"] = [][]string{{"verify-abc123"}}

	res, err := env.svc.Verify(ctx, "shop1")
	require.NoError(t, err)
	assert.True(t, res.CustomDomainVerified)

	sub, ok := env.cache.SubdomainFor("shop.com")
	require.True(t, ok)
	assert.Equal(t, "shop1", sub)
}

// pausingResolver answers from records but parks every lookup until release
// is closed, reporting on entered when a lookup starts.
type pausingResolver struct {
	records map[string][][]string
	entered chan string
	release chan struct{}
}

func newPausingResolver() *pausingResolver {
	return &pausingResolver{
		records: map[string][][]string{},
		entered: make(chan string, 1),
		release: make(chan struct{}),
	}
}

func (p *pausingResolver) LookupTXT(ctx context.Context, domain string) ([][]string, error) {
	p.entered <- domain
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	recs, ok := p.records[domain]
	if !ok {
		return nil, ErrNoRecords
	}
	return recs, nil
}

// A DNS proof for one claim must never be recorded onto a claim that
// replaced it while the lookup was in flight.
func TestVerifyDiscardsOutcomeWhenClaimChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, svc *Service)
		domain string
	}{
		{
			name: "reclaimed another domain",
			mutate: func(t *testing.T, svc *Service) {
				_, err := svc.Claim(context.Background(), "shop1", "victim.com")
				require.NoError(t, err)
			},
			domain: "victim.com",
		},
		{
			name: "domain removed",
			mutate: func(t *testing.T, svc *Service) {
				require.NoError(t, svc.Remove(context.Background(), "shop1"))
			},
			domain: "",
		},
		{
			name: "same domain reissued",
			mutate: func(t *testing.T, svc *Service) {
				_, err := svc.Claim(context.Background(), "shop1", "owned.com")
				require.NoError(t, err)
			},
			domain: "owned.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "shop1")
			ctx := context.Background()

			challenge, err := env.svc.Claim(ctx, "shop1", "owned.com")
			require.NoError(t, err)

			resolver := newPausingResolver()
			resolver.records["owned.com"] = [][]string{{challenge.VerificationCode}}
			svc := NewService(env.tenants, env.cache, resolver, nil,
				WithBaseDomain("example.com"),
				WithLookupTimeout(5*time.Second),
			)

			type outcome struct {
				res *VerifyResult
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				res, err := svc.Verify(ctx, "shop1")
				done <- outcome{res, err}
			}()

			select {
			case <-resolver.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("verification never reached DNS")
			}
			tt.mutate(t, env.svc)
			close(resolver.release)

			got := <-done
			require.ErrorIs(t, got.err, ErrClaimChanged)
			assert.Nil(t, got.res)

			tenant := env.tenant(t, "shop1")
			assert.Equal(t, tt.domain, tenant.CustomDomain)
			assert.False(t, tenant.CustomDomainVerified)
			assert.NotEqual(t, challenge.VerificationCode, tenant.CustomDomainVerificationCode)
			assert.False(t, env.cache.ContainsCustomDomain("owned.com"))
			assert.False(t, env.cache.ContainsCustomDomain("victim.com"))

			holder, err := env.tenants.GetByCustomDomain(ctx, "victim.com")
			require.NoError(t, err)
			if holder != nil {
				assert.False(t, holder.CustomDomainVerified)
			}
		})
	}
}
