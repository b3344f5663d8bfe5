package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/narvanalabs/storefront/internal/api/errors"
	"github.com/narvanalabs/storefront/internal/auth"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/tenantcache"
	"github.com/narvanalabs/storefront/pkg/logger"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tenantKey    contextKey = "tenant"
)

// SubdomainParam is the route parameter naming the tenant.
const SubdomainParam = "subdomain"

// GetPrincipal returns the authenticated caller, or nil.
func GetPrincipal(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey).(auth.Principal)
	return p
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetTenant returns the tenant loaded by RequireTenantManager, or nil.
func GetTenant(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantKey).(*models.Tenant)
	return t
}

// WithTenant returns a context carrying t.
func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// PrincipalResolver turns a bearer token into a principal.
type PrincipalResolver interface {
	ResolvePrincipal(token string) (auth.Principal, error)
}

// AuthMiddleware handles bearer token authentication.
type AuthMiddleware struct {
	resolver PrincipalResolver
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(resolver PrincipalResolver, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{resolver: resolver, logger: logger}
}

// Authenticate resolves the bearer token to a principal and stores it in the
// request context. Missing or invalid credentials get 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			apierrors.Write(w, r, apierrors.NewUnauthorizedError("Missing authentication"))
			return
		}

		principal, err := m.resolver.ResolvePrincipal(token)
		if err != nil {
			m.logger.Debug("JWT validation failed", "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				apierrors.Write(w, r, apierrors.NewUnauthorizedError("Token has expired"))
				return
			}
			apierrors.Write(w, r, apierrors.NewUnauthorizedError("Invalid token"))
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		ctx = logger.ContextWithUserID(ctx, principal.ID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenantManager loads the tenant named by the {subdomain} route
// parameter and checks the caller may manage it. Unknown tenants get 404 and
// are evicted from the cache; found tenants are re-inserted. Callers that may
// not manage the tenant get 403.
func RequireTenantManager(tenants store.TenantStore, cache tenantcache.Cache, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				apierrors.Write(w, r, apierrors.NewUnauthorizedError("Authentication required"))
				return
			}

			subdomain := models.NormalizeKey(chi.URLParam(r, SubdomainParam))
			if subdomain == "" {
				apierrors.Write(w, r, apierrors.NewNotFoundError("Tenant not found"))
				return
			}

			tenant, err := tenants.GetBySubdomain(r.Context(), subdomain)
			if err != nil {
				log.Error("failed to get tenant for authorization", "error", err, "subdomain", subdomain)
				apierrors.Write(w, r, apierrors.NewInternalError("Failed to load tenant"))
				return
			}
			if tenant == nil {
				cache.Remove(subdomain)
				apierrors.Write(w, r, apierrors.NewNotFoundError("Tenant not found"))
				return
			}
			cache.Put(tenant.Subdomain)

			if !principal.CanManageTenant(tenant) {
				log.Debug("tenant access denied",
					"user_id", principal.ID(),
					"owner_id", tenant.OwnerUserID,
					"subdomain", subdomain,
				)
				apierrors.Write(w, r, apierrors.NewForbiddenError("Access denied"))
				return
			}

			ctx := WithTenant(r.Context(), tenant)
			ctx = logger.ContextWithTenant(ctx, tenant.Subdomain)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
