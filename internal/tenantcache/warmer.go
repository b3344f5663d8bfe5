package tenantcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/storefront/internal/metrics"
	"github.com/narvanalabs/storefront/internal/store"
	"golang.org/x/sync/singleflight"
)

// DefaultWarmupTimeout bounds a background warmup.
const DefaultWarmupTimeout = 30 * time.Second

// Warmer bulk-loads tenant keys from the canonical store into a Cache.
type Warmer struct {
	cache   Cache
	tenants store.TenantStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	group singleflight.Group
	once  sync.Once
}

// WarmerOption configures a Warmer.
type WarmerOption func(*Warmer)

// WithTimeout sets the deadline applied to background warmups.
func WithTimeout(d time.Duration) WarmerOption {
	return func(w *Warmer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithMetrics records warmup runs on m.
func WithMetrics(m *metrics.Metrics) WarmerOption {
	return func(w *Warmer) {
		w.metrics = m
	}
}

// NewWarmer creates a Warmer filling cache from tenants.
func NewWarmer(cache Cache, tenants store.TenantStore, logger *slog.Logger, opts ...WarmerOption) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Warmer{
		cache:   cache,
		tenants: tenants,
		logger:  logger.With("component", "tenantcache"),
		timeout: DefaultWarmupTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Warm loads every tenant and upserts its subdomain, plus its custom domain
// when verified. It never removes keys. Concurrent calls share one store read.
// The shared read is bounded by the warmer timeout rather than by any one
// caller's ctx, so a caller that gives up does not fail the others.
func (w *Warmer) Warm(ctx context.Context) error {
	ch := w.group.DoChan("warm", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		return nil, w.warm(loadCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Warmer) warm(ctx context.Context) error {
	start := time.Now()

	tenants, err := w.tenants.List(ctx)
	if err != nil {
		err = fmt.Errorf("listing tenants: %w", err)
		w.metrics.Warmup(time.Since(start), err)
		return err
	}

	domains := 0
	for _, t := range tenants {
		w.cache.Put(t.Subdomain)
		if t.CustomDomain != "" && t.CustomDomainVerified {
			w.cache.PutCustomDomain(t.CustomDomain, t.Subdomain)
			domains++
		}
	}

	elapsed := time.Since(start)
	w.metrics.Warmup(elapsed, nil)
	w.logger.Debug("tenant cache warmed",
		"tenants", len(tenants),
		"custom_domains", domains,
		"duration", elapsed,
	)
	return nil
}

// WarmAsync starts a warmup in the background and returns immediately.
// Failures are logged and otherwise ignored.
func (w *Warmer) WarmAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if err := w.Warm(ctx); err != nil {
			w.logger.Warn("tenant cache warmup failed", "error", err)
		}
	}()
}

// WarmOnce triggers WarmAsync the first time it is called in the process.
func (w *Warmer) WarmOnce() {
	w.once.Do(w.WarmAsync)
}
