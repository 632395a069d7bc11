package shortlink

import (
	"context"
	"log/slog"
	"time"

	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/metrics"
)

const (
	DefaultActiveTTL    = 30 * time.Second
	DefaultInactiveTTL  = 5 * time.Minute
	DefaultStoreTimeout = 2 * time.Second

	cacheKeyPrefix = "link:"
)

// lookup is a cached store answer. found=false caches a missing slug.
type lookup struct {
	link  Link
	found bool
}

// ResolverConfig holds configuration for the resolver.
type ResolverConfig struct {
	ActiveTTL    time.Duration // active links
	InactiveTTL  time.Duration // disabled links and missing slugs
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Resolver answers slug lookups from a process-local cache, falling back to
// the store on a miss.
type Resolver struct {
	store        Store
	cache        *cache.Cache[string, lookup]
	activeTTL    time.Duration
	inactiveTTL  time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewResolver creates a resolver that owns its cache. Call Close to stop the
// cache's background sweep.
func NewResolver(store Store, cfg ResolverConfig, cacheOpts ...cache.Option) *Resolver {
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = DefaultActiveTTL
	}
	if cfg.InactiveTTL <= 0 {
		cfg.InactiveTTL = DefaultInactiveTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:        store,
		cache:        cache.New[string, lookup](cacheOpts...),
		activeTTL:    cfg.ActiveTTL,
		inactiveTTL:  cfg.InactiveTTL,
		storeTimeout: cfg.StoreTimeout,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// Resolve returns the link for slug and whether it exists. Store failures are
// returned as errors and never cached.
func (r *Resolver) Resolve(ctx context.Context, slug string) (Link, bool, error) {
	const op = "shortlink.resolver.Resolve"

	res, cached, err := r.cache.GetOrLoad(cacheKey(slug), func() (lookup, error) {
		return r.load(ctx, slug)
	}, r.ttl)
	if err != nil {
		r.metrics.CacheMiss()
		return Link{}, false, errx.E(op, errx.KindOf(err), err)
	}

	if cached {
		r.metrics.CacheHit()
	} else {
		r.metrics.CacheMiss()
	}
	return res.link, res.found, nil
}

// Invalidate drops any cached answer for slug.
func (r *Resolver) Invalidate(slug string) {
	r.cache.Delete(cacheKey(slug))
}

func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}

func (r *Resolver) Close() {
	r.cache.Close()
}

// load queries the store. The call is detached from the caller's cancellation
// because other callers may be waiting on the same lookup; it is bounded by
// storeTimeout instead.
func (r *Resolver) load(ctx context.Context, slug string) (lookup, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
	defer cancel()

	start := time.Now()
	link, err := r.store.FindLinkBySlug(ctx, slug)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.metrics.ObserveStoreLookup("ok", elapsed)
		return lookup{link: link, found: true}, nil

	case errx.Is(err, errx.NotFound):
		r.metrics.ObserveStoreLookup("not_found", elapsed)
		return lookup{}, nil

	default:
		r.metrics.ObserveStoreLookup("error", elapsed)
		r.logger.ErrorContext(ctx, "link lookup failed",
			"slug", slug,
			"error", err.Error(),
			"error_kind", errx.KindOf(err),
			"operation", errx.OpOf(err),
			"duration_ms", elapsed.Milliseconds(),
		)
		return lookup{}, err
	}
}

func (r *Resolver) ttl(l lookup) time.Duration {
	if l.found && l.link.Active {
		return r.activeTTL
	}
	return r.inactiveTTL
}

func cacheKey(slug string) string {
	return cacheKeyPrefix + slug
}
