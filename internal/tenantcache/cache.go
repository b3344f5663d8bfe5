// Package tenantcache provides the per-process tenant existence cache and its
// bulk populator.
//
// The cache answers "does routing to this key make sense", never "what is the
// tenant": it holds presence markers only, so it can never serve stale tenant
// content. It is a hint for the router and is never authoritative; handlers
// always re-validate against the tenant store.
package tenantcache

import (
	"sort"
	"sync"

	"github.com/narvanalabs/storefront/internal/metrics"
	"github.com/narvanalabs/storefront/internal/models"
)

// Cache is the tenant existence cache contract.
type Cache interface {
	// Put marks a subdomain as backed by an existing tenant. Idempotent.
	Put(subdomain string)
	// Remove evicts a subdomain key together with every custom domain pointing
	// at it. Idempotent.
	Remove(subdomain string)
	// Contains reports whether a subdomain key is present. Never blocks on I/O.
	Contains(subdomain string) bool

	// PutCustomDomain registers a verified custom domain resolving to the same
	// tenant as subdomain.
	PutCustomDomain(domain, subdomain string)
	// RemoveCustomDomain evicts a custom domain key. Idempotent.
	RemoveCustomDomain(domain string)
	// ContainsCustomDomain reports whether a custom domain key is present.
	ContainsCustomDomain(domain string) bool
	// SubdomainFor returns the subdomain a cached custom domain points at.
	SubdomainFor(domain string) (string, bool)

	// Len returns the number of keys, subdomains and custom domains together.
	Len() int
}

// MemoryCache is a Cache backed by maps guarded by a RWMutex. Entries have no
// TTL; they live until evicted or the process exits.
type MemoryCache struct {
	mu         sync.RWMutex
	subdomains map[string]struct{}
	domains    map[string]string              // custom domain -> subdomain
	byTenant   map[string]map[string]struct{} // subdomain -> custom domains

	metrics *metrics.Metrics
}

// NewMemoryCache creates an empty cache. m may be nil.
func NewMemoryCache(m *metrics.Metrics) *MemoryCache {
	return &MemoryCache{
		subdomains: make(map[string]struct{}),
		domains:    make(map[string]string),
		byTenant:   make(map[string]map[string]struct{}),
		metrics:    m,
	}
}

// Put marks subdomain as present.
func (c *MemoryCache) Put(subdomain string) {
	key := models.NormalizeKey(subdomain)
	if key == "" {
		return
	}

	c.mu.Lock()
	c.subdomains[key] = struct{}{}
	n := c.lenLocked()
	c.mu.Unlock()

	c.metrics.CacheSize(n)
}

// Remove evicts subdomain and all custom domains pointing at it.
func (c *MemoryCache) Remove(subdomain string) {
	s := models.NormalizeKey(subdomain)

	c.mu.Lock()
	delete(c.subdomains, s)
	for d := range c.byTenant[s] {
		delete(c.domains, d)
	}
	delete(c.byTenant, s)
	n := c.lenLocked()
	c.mu.Unlock()

	c.metrics.CacheSize(n)
}

// Contains reports whether subdomain is present.
func (c *MemoryCache) Contains(subdomain string) bool {
	key := models.NormalizeKey(subdomain)

	c.mu.RLock()
	_, ok := c.subdomains[key]
	c.mu.RUnlock()

	c.metrics.CacheLookup("subdomain", ok)
	return ok
}

// PutCustomDomain binds domain to subdomain. A domain re-bound to another
// subdomain moves; it is never held by two tenants at once.
func (c *MemoryCache) PutCustomDomain(domain, subdomain string) {
	d := models.NormalizeKey(domain)
	s := models.NormalizeKey(subdomain)
	if d == "" || s == "" {
		return
	}

	c.mu.Lock()
	if prev, ok := c.domains[d]; ok && prev != s {
		c.unlinkLocked(d, prev)
	}
	c.domains[d] = s
	set, ok := c.byTenant[s]
	if !ok {
		set = make(map[string]struct{})
		c.byTenant[s] = set
	}
	set[d] = struct{}{}
	n := c.lenLocked()
	c.mu.Unlock()

	c.metrics.CacheSize(n)
}

// RemoveCustomDomain evicts domain.
func (c *MemoryCache) RemoveCustomDomain(domain string) {
	d := models.NormalizeKey(domain)

	c.mu.Lock()
	if s, ok := c.domains[d]; ok {
		delete(c.domains, d)
		c.unlinkLocked(d, s)
	}
	n := c.lenLocked()
	c.mu.Unlock()

	c.metrics.CacheSize(n)
}

// ContainsCustomDomain reports whether domain is present.
func (c *MemoryCache) ContainsCustomDomain(domain string) bool {
	_, ok := c.SubdomainFor(domain)
	c.metrics.CacheLookup("custom_domain", ok)
	return ok
}

// SubdomainFor returns the subdomain a custom domain is bound to.
func (c *MemoryCache) SubdomainFor(domain string) (string, bool) {
	d := models.NormalizeKey(domain)

	c.mu.RLock()
	s, ok := c.domains[d]
	c.mu.RUnlock()
	return s, ok
}

// Len returns the number of keys held.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lenLocked()
}

// Keys returns every subdomain and custom domain key, sorted.
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, c.lenLocked())
	for k := range c.subdomains {
		keys = append(keys, k)
	}
	for k := range c.domains {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

func (c *MemoryCache) lenLocked() int {
	return len(c.subdomains) + len(c.domains)
}

// unlinkLocked drops domain from the reverse index of subdomain.
func (c *MemoryCache) unlinkLocked(domain, subdomain string) {
	set := c.byTenant[subdomain]
	delete(set, domain)
	if len(set) == 0 {
		delete(c.byTenant, subdomain)
	}
}

var _ Cache = (*MemoryCache)(nil)
