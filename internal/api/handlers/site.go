package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/router"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/tenantcache"
)

// TenantKeyParam is the route parameter holding the rewritten tenant key.
const TenantKeyParam = "tenantKey"

// SiteHandler serves tenant storefront requests after the router rewrote
// them onto /{tenantKey}/... Every request is checked against the store;
// the cache is only healed from the outcome.
type SiteHandler struct {
	tenants store.TenantStore
	cache   tenantcache.Cache
	logger  *slog.Logger
}

// NewSiteHandler creates a new site handler.
func NewSiteHandler(tenants store.TenantStore, cache tenantcache.Cache, logger *slog.Logger) *SiteHandler {
	return &SiteHandler{tenants: tenants, cache: cache, logger: logger}
}

// SiteTenant is the public view of a tenant.
type SiteTenant struct {
	ID           string `json:"id"`
	Subdomain    string `json:"subdomain"`
	Name         string `json:"name"`
	CustomDomain string `json:"customDomain,omitempty"`
}

// SitePage is the storefront response. Rendering belongs to the site layer;
// this core answers which tenant and page a request is for.
type SitePage struct {
	Tenant SiteTenant `json:"tenant"`
	Path   string     `json:"path"`
	Mode   string     `json:"mode"`
	Cached bool       `json:"cached"`
}

// Serve handles /{tenantKey} and /{tenantKey}/*.
func (h *SiteHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := models.NormalizeKey(chi.URLParam(r, TenantKeyParam))
	decision, _ := router.DecisionFromContext(r.Context())

	var (
		tenant *models.Tenant
		err    error
	)
	if decision.Mode == router.ModeCustomDomain {
		tenant, err = h.resolveCustomDomain(r, decision.Host)
	} else {
		tenant, err = h.resolveSubdomain(r, key)
	}
	if err != nil {
		h.logger.Error("failed to resolve tenant", "error", err, "key", key, "host", decision.Host)
		WriteInternalError(w, r, "Failed to load tenant")
		return
	}
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	path := "/" + chi.URLParam(r, "*")
	WriteJSON(w, http.StatusOK, SitePage{
		Tenant: SiteTenant{
			ID:           tenant.ID,
			Subdomain:    tenant.Subdomain,
			Name:         tenant.Name,
			CustomDomain: verifiedDomain(tenant),
		},
		Path:   path,
		Mode:   string(decision.Mode),
		Cached: decision.Cached,
	})
}

// resolveSubdomain looks the key up as a subdomain, putting hits into the
// cache and evicting misses.
func (h *SiteHandler) resolveSubdomain(r *http.Request, key string) (*models.Tenant, error) {
	tenant, err := h.tenants.GetBySubdomain(r.Context(), key)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		h.cache.Remove(key)
		return nil, nil
	}
	h.cache.Put(tenant.Subdomain)
	return tenant, nil
}

// resolveCustomDomain looks the host up as a custom domain. Only verified
// bindings serve a site.
func (h *SiteHandler) resolveCustomDomain(r *http.Request, host string) (*models.Tenant, error) {
	tenant, err := h.tenants.GetByCustomDomain(r.Context(), host)
	if err != nil {
		return nil, err
	}
	if tenant == nil || !tenant.CustomDomainVerified {
		h.cache.RemoveCustomDomain(host)
		return nil, nil
	}
	h.cache.Put(tenant.Subdomain)
	h.cache.PutCustomDomain(host, tenant.Subdomain)
	return tenant, nil
}

func verifiedDomain(t *models.Tenant) string {
	if t.CustomDomainVerified {
		return t.CustomDomain
	}
	return ""
}
