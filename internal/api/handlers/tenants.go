package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/narvanalabs/storefront/internal/api/middleware"
	"github.com/narvanalabs/storefront/internal/auth"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/tenantcache"
)

// Warmer refreshes the tenant cache in the background.
type Warmer interface {
	WarmAsync()
}

// TenantHandler handles tenant-related HTTP requests.
type TenantHandler struct {
	tenants store.TenantStore
	cache   tenantcache.Cache
	warmer  Warmer
	logger  *slog.Logger
}

// NewTenantHandler creates a new tenant handler. warmer may be nil.
func NewTenantHandler(tenants store.TenantStore, cache tenantcache.Cache, warmer Warmer, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{
		tenants: tenants,
		cache:   cache,
		warmer:  warmer,
		logger:  logger,
	}
}

// CreateTenantRequest represents the request body for creating a tenant.
type CreateTenantRequest struct {
	Subdomain string `json:"subdomain"`
	Name      string `json:"name"`
	// OwnerUserID lets an admin create a tenant on behalf of a user.
	OwnerUserID string `json:"owner_user_id,omitempty"`
}

// Validate normalizes and validates the request.
func (r *CreateTenantRequest) Validate() error {
	r.Subdomain = models.NormalizeKey(r.Subdomain)
	r.Name = strings.TrimSpace(r.Name)
	if err := models.ValidateSubdomain(r.Subdomain); err != nil {
		if errors.Is(err, models.ErrReservedSubdomain) {
			return &models.ValidationError{Field: "subdomain", Message: "subdomain is reserved"}
		}
		return err
	}
	if len(r.Name) > 255 {
		return &models.ValidationError{Field: "name", Message: "name must be 255 characters or less"}
	}
	return nil
}

// List handles GET /api/tenants. Admins see every tenant, owners their own.
// Listing also refreshes the tenant cache in the background.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, r, "Authentication required")
		return
	}

	if h.warmer != nil {
		h.warmer.WarmAsync()
	}

	var (
		tenants []*models.Tenant
		err     error
	)
	if principal.Role() == auth.RoleAdmin {
		tenants, err = h.tenants.List(r.Context())
	} else {
		tenants, err = h.tenants.ListByOwner(r.Context(), principal.ID())
	}
	if err != nil {
		h.logger.Error("failed to list tenants", "error", err, "user_id", principal.ID())
		WriteInternalError(w, r, "Failed to list tenants")
		return
	}

	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	WriteJSON(w, http.StatusOK, tenants)
}

// Create handles POST /api/tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		WriteUnauthorized(w, r, "Authentication required")
		return
	}

	var req CreateTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteValidationError(w, r, err)
		return
	}

	owner := principal.ID()
	if req.OwnerUserID != "" && req.OwnerUserID != owner {
		if principal.Role() != auth.RoleAdmin {
			WriteForbidden(w, r, "Only admins can create tenants for other users")
			return
		}
		owner = req.OwnerUserID
	}

	tenant := &models.Tenant{
		Subdomain:   req.Subdomain,
		Name:        req.Name,
		OwnerUserID: owner,
	}
	if err := h.tenants.Create(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateSubdomain) {
			WriteConflict(w, r, "Subdomain is already in use")
			return
		}
		h.logger.Error("failed to create tenant", "error", err, "subdomain", req.Subdomain)
		WriteInternalError(w, r, "Failed to create tenant")
		return
	}

	h.cache.Put(tenant.Subdomain)

	h.logger.Info("tenant created", "tenant_id", tenant.ID, "subdomain", tenant.Subdomain, "owner_id", owner)
	WriteJSON(w, http.StatusCreated, tenant)
}

// Get handles GET /api/tenants/{subdomain}. The tenant was loaded and
// authorized by RequireTenantManager.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}
	WriteJSON(w, http.StatusOK, tenant)
}

// Delete handles DELETE /api/tenants/{subdomain}. The tenant and every
// custom domain key pointing at it leave the cache.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	err := h.tenants.Delete(r.Context(), tenant.Subdomain)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("failed to delete tenant", "error", err, "subdomain", tenant.Subdomain)
		WriteInternalError(w, r, "Failed to delete tenant")
		return
	}

	h.cache.Remove(tenant.Subdomain)

	if errors.Is(err, store.ErrNotFound) {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	h.logger.Info("tenant deleted", "tenant_id", tenant.ID, "subdomain", tenant.Subdomain)
	WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
