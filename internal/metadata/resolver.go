package metadata

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Environment is the deployment environment a resolver serves. It is derived
// once at process start and passed in explicitly.
type Environment struct {
	Name     string
	Defaults Fields
}

// DefaultCacheTTL bounds how long a merged defaults+template base is reused.
const DefaultCacheTTL = 5 * time.Minute

// Resolver resolves per-asset records against one environment and a template
// catalog. The merged defaults+template base is cached per
// environment+template with a short TTL.
type Resolver struct {
	env     Environment
	catalog *Catalog
	cache   *baseCache
	logger  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL sets the base cache TTL. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.cache.ttl = ttl }
}

// WithClock replaces the cache clock. Used by tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.cache.now = now }
}

// WithLogger attaches a logger for recovered validation errors.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver for env using catalog.
func NewResolver(env Environment, catalog *Catalog, opts ...ResolverOption) *Resolver {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	r := &Resolver{
		env:     env,
		catalog: catalog,
		cache:   newBaseCache(DefaultCacheTTL, time.Now),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Environment returns the environment this resolver serves.
func (r *Resolver) Environment() Environment { return r.env }

// Catalog returns the template catalog.
func (r *Resolver) Catalog() *Catalog { return r.catalog }

// Resolve resolves overrides on top of the environment defaults and the named
// template. An empty template name means no template. An unknown template is
// reported and resolution continues with defaults only. Returned errors are
// informational; the record is always usable.
func (r *Resolver) Resolve(template string, overrides *Fields) (Canonical, error) {
	var errs []error
	base, err := r.base(template)
	if err != nil {
		errs = append(errs, err)
	}
	c, err := Resolve(base, nil, overrides)
	if err != nil {
		errs = append(errs, err)
	}
	joined := errors.Join(errs...)
	if joined != nil {
		r.logger.Warn("metadata: recovered invalid input",
			"env", r.env.Name, "template", template, "error", joined)
	}
	return c, joined
}

// ClearCache drops every cached base.
func (r *Resolver) ClearCache() { r.cache.clear() }

func (r *Resolver) base(template string) (Fields, error) {
	key := r.env.Name + "\x00" + template
	if f, ok := r.cache.get(key); ok {
		return f, nil
	}

	var tmpl *Fields
	var tmplErr error
	if template != "" {
		t, ok := r.catalog.Get(template)
		if ok {
			tmpl = &t.Fields
		} else {
			tmplErr = &InvalidMetadataError{Field: "template", Reason: "unknown template " + template}
		}
	}

	// Validation errors in defaults/templates are configuration problems;
	// they surface on the first resolution and are cached away after that.
	c, err := Resolve(r.env.Defaults, tmpl, nil)
	f := c.fields
	if tmplErr == nil {
		r.cache.put(key, f)
	}
	return f, errors.Join(tmplErr, err)
}

type cacheEntry struct {
	fields  Fields
	expires time.Time
}

// baseCache is a read-through map with per-entry expiry.
type baseCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]cacheEntry
}

func newBaseCache(ttl time.Duration, now func() time.Time) *baseCache {
	return &baseCache{ttl: ttl, now: now, data: make(map[string]cacheEntry)}
}

func (c *baseCache) get(key string) (Fields, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return Fields{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.data, key)
		return Fields{}, false
	}
	return e.fields.Clone(), true
}

func (c *baseCache) put(key string, f Fields) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{fields: f.Clone(), expires: c.now().Add(c.ttl)}
}

func (c *baseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry)
}

func (c *baseCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
