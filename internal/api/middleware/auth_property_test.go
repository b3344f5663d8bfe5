package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/storefront/internal/auth"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store/memory"
	"github.com/narvanalabs/storefront/internal/tenantcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-characters"

func newTestAuth() *auth.Service {
	return auth.NewService(&auth.Config{JWTSecret: []byte(testSecret), TokenExpiry: time.Hour}, nil)
}

// newProtectedRouter mounts an OK handler behind Authenticate and
// RequireTenantManager, the way the API server does.
func newProtectedRouter(authSvc *auth.Service, tenants *memory.TenantStore, cache tenantcache.Cache) http.Handler {
	r := chi.NewRouter()
	r.Use(NewAuthMiddleware(authSvc, nil).Authenticate)
	r.Route("/tenants/{subdomain}", func(r chi.Router) {
		r.Use(RequireTenantManager(tenants, cache, discardLogger()))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if GetTenant(r.Context()) == nil || GetPrincipal(r.Context()) == nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func do(h http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

// For any tenant owned by user A, user B is forbidden while A and any admin
// are let through.
func TestPropertyCrossUserAccessDenied(t *testing.T) {
	authSvc := newTestAuth()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("only the owner or an admin manages a tenant", prop.ForAll(
		func(ownerID, otherID string) bool {
			if ownerID == otherID {
				return true
			}
			tenants := memory.NewTenantStore()
			if err := tenants.Create(context.Background(), &models.Tenant{Subdomain: "shop1", OwnerUserID: ownerID}); err != nil {
				return false
			}
			h := newProtectedRouter(authSvc, tenants, tenantcache.NewMemoryCache(nil))

			ownerToken, _ := authSvc.GenerateToken(ownerID, "", auth.RoleOwner)
			otherToken, _ := authSvc.GenerateToken(otherID, "", auth.RoleOwner)
			adminToken, _ := authSvc.GenerateToken(otherID, "", auth.RoleAdmin)

			return do(h, "/tenants/shop1/", ownerToken) == http.StatusOK &&
				do(h, "/tenants/shop1/", otherToken) == http.StatusForbidden &&
				do(h, "/tenants/shop1/", adminToken) == http.StatusOK
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestAuthenticateRejections(t *testing.T) {
	authSvc := newTestAuth()
	h := newProtectedRouter(authSvc, memory.NewTenantStore(), tenantcache.NewMemoryCache(nil))

	assert.Equal(t, http.StatusUnauthorized, do(h, "/tenants/shop1/", ""))
	assert.Equal(t, http.StatusUnauthorized, do(h, "/tenants/shop1/", "not-a-token"))

	expired := auth.NewService(&auth.Config{JWTSecret: []byte(testSecret), TokenExpiry: -time.Hour}, nil)
	token, err := expired.GenerateToken("user-1", "", auth.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(h, "/tenants/shop1/", token))
}

func TestRequireTenantManagerSelfHeals(t *testing.T) {
	authSvc := newTestAuth()
	tenants := memory.NewTenantStore()
	require.NoError(t, tenants.Create(context.Background(), &models.Tenant{Subdomain: "shop1", OwnerUserID: "user-1"}))

	cache := tenantcache.NewMemoryCache(nil)
	cache.Put("gone")
	h := newProtectedRouter(authSvc, tenants, cache)
	token, err := authSvc.GenerateToken("user-1", "", auth.RoleOwner)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(h, "/tenants/shop1/", token))
	assert.True(t, cache.Contains("shop1"))

	assert.Equal(t, http.StatusNotFound, do(h, "/tenants/gone/", token))
	assert.False(t, cache.Contains("gone"))
}
