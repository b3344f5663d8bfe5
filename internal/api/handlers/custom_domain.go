package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/narvanalabs/storefront/internal/api/middleware"
	"github.com/narvanalabs/storefront/internal/domainverify"
)

// DomainVerifier runs the custom domain flows.
type DomainVerifier interface {
	Claim(ctx context.Context, subdomain, domain string) (*domainverify.Challenge, error)
	Status(ctx context.Context, subdomain string) (*domainverify.StatusResult, error)
	Verify(ctx context.Context, subdomain string) (*domainverify.VerifyResult, error)
	Remove(ctx context.Context, subdomain string) error
}

// CustomDomainHandler handles /api/tenants/{subdomain}/custom-domain.
type CustomDomainHandler struct {
	verifier DomainVerifier
	logger   *slog.Logger
}

// NewCustomDomainHandler creates a new custom domain handler.
func NewCustomDomainHandler(verifier DomainVerifier, logger *slog.Logger) *CustomDomainHandler {
	return &CustomDomainHandler{verifier: verifier, logger: logger}
}

// ClaimDomainRequest represents the request body for claiming a domain.
type ClaimDomainRequest struct {
	Domain string `json:"domain"`
}

// Get handles GET: the current domain state, with a live DNS check while
// the claim is pending.
func (h *CustomDomainHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	status, err := h.verifier.Status(r.Context(), tenant.Subdomain)
	if err != nil {
		h.writeError(w, r, err, "Failed to get custom domain status")
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Claim handles POST: binds a domain and returns the TXT record to create.
func (h *CustomDomainHandler) Claim(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	var req ClaimDomainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		WriteBadRequest(w, r, "domain is required")
		return
	}

	challenge, err := h.verifier.Claim(r.Context(), tenant.Subdomain, req.Domain)
	if err != nil {
		h.writeError(w, r, err, "Failed to claim domain")
		return
	}
	WriteJSON(w, http.StatusCreated, challenge)
}

// Verify handles PUT: checks DNS and records the outcome. A domain that is
// not verified yet is a normal answer, not an error.
func (h *CustomDomainHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	result, err := h.verifier.Verify(r.Context(), tenant.Subdomain)
	if err != nil {
		h.writeError(w, r, err, "Failed to verify domain")
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Delete handles DELETE: clears the custom domain.
func (h *CustomDomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		WriteNotFound(w, r, "Tenant not found")
		return
	}

	if err := h.verifier.Remove(r.Context(), tenant.Subdomain); err != nil {
		h.writeError(w, r, err, "Failed to remove domain")
		return
	}
	WriteJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *CustomDomainHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domainverify.ErrTenantNotFound):
		WriteNotFound(w, r, "Tenant not found")
	case errors.Is(err, domainverify.ErrInvalidDomain):
		WriteBadRequest(w, r, err.Error())
	case errors.Is(err, domainverify.ErrNoDomainClaimed):
		WriteBadRequest(w, r, "No custom domain has been claimed")
	case errors.Is(err, domainverify.ErrDomainTaken):
		WriteConflict(w, r, "Domain is already in use by another tenant")
	case errors.Is(err, domainverify.ErrClaimChanged):
		WriteConflict(w, r, "Custom domain changed during verification, verify again")
	default:
		h.logger.Error("custom domain operation failed", "error", err, "path", r.URL.Path)
		WriteInternalError(w, r, fallback)
	}
}
