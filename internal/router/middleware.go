package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/narvanalabs/storefront/internal/metrics"
)

type contextKey string

const decisionKey contextKey = "routing_decision"

// WithDecision returns a context carrying d.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// DecisionFromContext returns the routing decision stored by the middleware.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey).(Decision)
	return d, ok
}

// Warmer is triggered on the first routed request.
type Warmer interface {
	WarmOnce()
}

// Router rewrites inbound requests onto tenant-scoped paths.
type Router struct {
	resolver *Resolver
	warmer   Warmer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Router. warmer and m may be nil.
func New(resolver *Resolver, warmer Warmer, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver: resolver,
		warmer:   warmer,
		metrics:  m,
		logger:   logger.With("component", "router"),
	}
}

// Middleware resolves the tenant for every request, rewrites the path and
// stores the Decision in the request context. It never rejects a request.
func (rt *Router) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.warmer != nil {
			rt.warmer.WarmOnce()
		}

		d := rt.resolver.Resolve(r.Host, r.URL.Path)
		rt.metrics.RouterDecision(string(d.Mode), d.Cached)

		r = r.WithContext(WithDecision(r.Context(), d))
		if d.Rewritten {
			u := *r.URL
			u.Path = d.Path
			u.RawPath = ""
			r.URL = &u

			rt.logger.Debug("request rewritten",
				"host", d.Host,
				"mode", d.Mode,
				"key", d.Key,
				"path", d.Path,
				"cached", d.Cached,
			)
		}

		next.ServeHTTP(w, r)
	})
}
