// Package memory provides an in-memory implementation of the store interfaces.
// Data is lost on restart; it backs local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
type TenantStore struct {
	mu sync.RWMutex

	tenants map[string]*models.Tenant // subdomain -> Tenant
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[string]*models.Tenant),
	}
}

// Create creates a new tenant in memory.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeKey(tenant.Subdomain)
	if _, exists := s.tenants[key]; exists {
		return store.ErrDuplicateSubdomain
	}
	if tenant.CustomDomain != "" && s.domainOwnerLocked(tenant.CustomDomain) != nil {
		return store.ErrDomainTaken
	}

	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tenant.Subdomain = key
	tenant.CustomDomain = models.NormalizeKey(tenant.CustomDomain)
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	s.tenants[key] = tenant.Clone()
	return nil
}

// GetBySubdomain retrieves a tenant by subdomain.
func (s *TenantStore) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tenants[models.NormalizeKey(subdomain)].Clone(), nil
}

// GetByID retrieves a tenant by ID.
func (s *TenantStore) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return nil, nil
}

// GetByCustomDomain retrieves the tenant holding a custom domain claim.
func (s *TenantStore) GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.domainOwnerLocked(domain).Clone(), nil
}

// List returns all tenants ordered by subdomain.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		result = append(result, t.Clone())
	}
	sortBySubdomain(result)
	return result, nil
}

// ListByOwner returns all tenants owned by a user.
func (s *TenantStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Tenant
	for _, t := range s.tenants {
		if t.OwnerUserID == ownerUserID {
			result = append(result, t.Clone())
		}
	}
	sortBySubdomain(result)
	return result, nil
}

// Update applies a partial update. Returns nil when the tenant does not exist.
func (s *TenantStore) Update(ctx context.Context, subdomain string, patch models.TenantPatch) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tenants[models.NormalizeKey(subdomain)]
	if !ok {
		return nil, nil
	}
	if !patch.Satisfied(existing) {
		return nil, store.ErrPreconditionFailed
	}

	updated := existing.Clone()
	patch.Apply(updated)
	updated.CustomDomain = models.NormalizeKey(updated.CustomDomain)

	if updated.CustomDomain != "" {
		if owner := s.domainOwnerLocked(updated.CustomDomain); owner != nil && owner.ID != updated.ID {
			return nil, store.ErrDomainTaken
		}
	}

	updated.UpdatedAt = time.Now().UTC()
	s.tenants[updated.Subdomain] = updated
	return updated.Clone(), nil
}

// Delete removes a tenant by subdomain.
func (s *TenantStore) Delete(ctx context.Context, subdomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeKey(subdomain)
	if _, ok := s.tenants[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.tenants, key)
	return nil
}

// domainOwnerLocked finds the tenant holding domain. Callers hold s.mu.
func (s *TenantStore) domainOwnerLocked(domain string) *models.Tenant {
	domain = models.NormalizeKey(domain)
	if domain == "" {
		return nil
	}
	for _, t := range s.tenants {
		if t.CustomDomain == domain {
			return t
		}
	}
	return nil
}

func sortBySubdomain(tenants []*models.Tenant) {
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].Subdomain < tenants[j].Subdomain
	})
}

// Store implements store.Store on top of the in-memory tenant store.
type Store struct {
	tenants *TenantStore
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{tenants: NewTenantStore()}
}

// Tenants returns the TenantStore.
func (s *Store) Tenants() store.TenantStore {
	return s.tenants
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var (
	_ store.TenantStore = (*TenantStore)(nil)
	_ store.Store       = (*Store)(nil)
)
