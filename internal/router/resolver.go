// Package router maps an inbound host and path to a tenant and rewrites the
// request onto the internal /{tenantKey}/... path.
package router

import (
	"net"
	"slices"
	"strings"

	"github.com/narvanalabs/storefront/internal/models"
	"github.com/narvanalabs/storefront/internal/tenantcache"
)

// Mode is how a request was matched to a tenant.
type Mode string

const (
	ModePassthrough  Mode = "passthrough"
	ModePath         Mode = "path"
	ModeSubdomain    Mode = "subdomain"
	ModeCustomDomain Mode = "custom_domain"
)

// Decision is the routing outcome for one request.
type Decision struct {
	Mode Mode
	// Key is the tenant key the request is scoped to. For a custom domain it
	// is the tenant subdomain when the cache knows the binding, otherwise the
	// domain itself.
	Key string
	// Host is the request host without port, normalized.
	Host string
	// Path is the path the request continues with.
	Path      string
	Rewritten bool
	// Cached reports whether the existence cache knew the key. It never
	// changes the outcome.
	Cached bool
}

// DefaultReservedPaths are first path segments that belong to the platform
// on development hosts.
var DefaultReservedPaths = []string{
	"admin", "user", "api", "_next", "static", "assets",
	"favicon.ico", "robots.txt", "metrics", "health",
}

// RequiredReservedPaths always pass through on dev hosts, whatever the
// configured list says, so the platform's own endpoints stay reachable.
var RequiredReservedPaths = []string{"api", "health", "metrics"}

// DefaultDevHosts are served in path mode.
var DefaultDevHosts = []string{"localhost", "127.0.0.1"}

// Config configures a Resolver.
type Config struct {
	// BaseDomain is the platform domain tenants are subdomains of.
	BaseDomain string
	// DevHosts are bare hosts where the first path segment names the tenant.
	DevHosts []string
	// ReservedPaths are first segments passed through on dev hosts.
	// RequiredReservedPaths are added to any list given here.
	ReservedPaths []string
}

// Resolver computes routing decisions. It is safe for concurrent use.
type Resolver struct {
	baseDomain string
	devHosts   map[string]bool
	reserved   map[string]bool
	cache      tenantcache.Cache
}

// NewResolver creates a Resolver. Nil slices in cfg take the defaults.
// RequiredReservedPaths are reserved even when cfg lists its own paths.
func NewResolver(cfg Config, cache tenantcache.Cache) *Resolver {
	devHosts := cfg.DevHosts
	if devHosts == nil {
		devHosts = DefaultDevHosts
	}
	reserved := cfg.ReservedPaths
	if reserved == nil {
		reserved = DefaultReservedPaths
	}

	r := &Resolver{
		baseDomain: models.NormalizeKey(cfg.BaseDomain),
		devHosts:   make(map[string]bool, len(devHosts)),
		reserved:   make(map[string]bool, len(reserved)),
		cache:      cache,
	}
	for _, h := range devHosts {
		if h = models.NormalizeKey(h); h != "" {
			r.devHosts[h] = true
		}
	}
	for _, p := range slices.Concat(RequiredReservedPaths, reserved) {
		if p = strings.ToLower(strings.Trim(strings.TrimSpace(p), "/")); p != "" {
			r.reserved[p] = true
		}
	}
	return r
}

// Resolve decides how a request for host and path is routed. It never fails;
// anything it cannot place passes through unchanged.
func (r *Resolver) Resolve(host, path string) Decision {
	host = stripPort(host)
	if path == "" {
		path = "/"
	}
	pass := Decision{Mode: ModePassthrough, Host: host, Path: path}

	switch {
	case host == "":
		return pass

	case r.devHosts[host]:
		segment := firstSegment(path)
		if segment == "" || r.reserved[strings.ToLower(segment)] {
			return pass
		}
		key := models.NormalizeKey(segment)
		return Decision{
			Mode:   ModePath,
			Key:    key,
			Host:   host,
			Path:   path,
			Cached: r.cache.Contains(key),
		}

	case net.ParseIP(host) != nil:
		// Bare IPs come from load balancer health checks and internal callers.
		return pass

	case r.baseDomain != "" && models.IsUnderDomain(host, r.baseDomain):
		if host == r.baseDomain {
			return pass
		}
		label := strings.TrimSuffix(host, "."+r.baseDomain)
		if i := strings.IndexByte(label, '.'); i >= 0 {
			label = label[:i]
		}
		if label == "" || label == "www" {
			return pass
		}
		return Decision{
			Mode:      ModeSubdomain,
			Key:       label,
			Host:      host,
			Path:      rewrite(label, path),
			Rewritten: true,
			Cached:    r.cache.Contains(label),
		}

	default:
		key := host
		cached := r.cache.ContainsCustomDomain(host)
		if cached {
			if sub, ok := r.cache.SubdomainFor(host); ok {
				key = sub
			}
		}
		return Decision{
			Mode:      ModeCustomDomain,
			Key:       key,
			Host:      host,
			Path:      rewrite(key, path),
			Rewritten: true,
			Cached:    cached,
		}
	}
}

// rewrite prefixes path with the tenant key.
func rewrite(key, path string) string {
	if path == "/" {
		return "/" + key
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "/" + key + path
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return models.NormalizeKey(strings.Trim(host, "[]"))
}
