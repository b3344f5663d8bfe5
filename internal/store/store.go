// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/narvanalabs/storefront/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a mutation targets a tenant that does not exist.
	ErrNotFound = errors.New("tenant not found")
	// ErrDuplicateSubdomain is returned when creating a tenant whose subdomain is taken.
	ErrDuplicateSubdomain = errors.New("subdomain already in use")
	// ErrDomainTaken is returned when a custom domain is already bound to another tenant.
	ErrDomainTaken = errors.New("custom domain already in use")
	// ErrPreconditionFailed is returned when an update's expected values no
	// longer match the stored tenant.
	ErrPreconditionFailed = errors.New("tenant changed since it was read")
)

// TenantStore defines operations on the canonical tenant records.
//
// Lookups return (nil, nil) when no tenant matches.
type TenantStore interface {
	// Create creates a new tenant. ID and timestamps are assigned by the store.
	Create(ctx context.Context, tenant *models.Tenant) error
	// GetBySubdomain retrieves a tenant by its subdomain.
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	// GetByID retrieves a tenant by ID.
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	// GetByCustomDomain retrieves the tenant that has claimed the given custom domain,
	// verified or not.
	GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error)
	// List retrieves all tenants.
	List(ctx context.Context) ([]*models.Tenant, error)
	// ListByOwner retrieves all tenants owned by a user.
	ListByOwner(ctx context.Context, ownerUserID string) ([]*models.Tenant, error)
	// Update applies a partial update to the tenant with the given subdomain and
	// returns the updated record, or nil when no such tenant exists. A patch
	// whose preconditions fail returns ErrPreconditionFailed and writes nothing.
	Update(ctx context.Context, subdomain string, patch models.TenantPatch) (*models.Tenant, error)
	// Delete removes a tenant by subdomain.
	Delete(ctx context.Context, subdomain string) error
}

// Store is the main interface for database operations.
type Store interface {
	// Tenants returns the TenantStore for tenant operations.
	Tenants() TenantStore
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying resources.
	Close() error
}
