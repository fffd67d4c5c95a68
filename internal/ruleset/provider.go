package ruleset

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/port"
	"invoicecheck/internal/rules"
)

const activeKey = "\x00active"

// Provider hands out compiled rule-set snapshots. Snapshots are cached by
// version; concurrent first requests for the same version share one load.
type Provider struct {
	store    port.RuleSetStore
	registry *rules.Registry
	cache    *lru.LRU[string, *RuleSet]
	group    singleflight.Group
}

// ProviderOption configures a Provider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	registry *rules.Registry
	size     int
	ttl      time.Duration
}

// WithRegistry sets the rule-kind registry. The default has every
// built-in kind.
func WithRegistry(r *rules.Registry) ProviderOption {
	return func(c *providerConfig) { c.registry = r }
}

// WithCache sets the cache size and entry lifetime. A zero ttl keeps
// entries until they are evicted by size.
func WithCache(size int, ttl time.Duration) ProviderOption {
	return func(c *providerConfig) { c.size, c.ttl = size, ttl }
}

// NewProvider creates a Provider backed by store.
func NewProvider(store port.RuleSetStore, opts ...ProviderOption) *Provider {
	cfg := providerConfig{size: 16}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = rules.DefaultRegistry()
	}
	if cfg.size < 1 {
		cfg.size = 1
	}
	return &Provider{
		store:    store,
		registry: cfg.registry,
		cache:    lru.NewLRU[string, *RuleSet](cfg.size, nil, cfg.ttl),
	}
}

// Get returns the snapshot for version, or the active one when version is
// empty.
func (p *Provider) Get(ctx context.Context, version string) (*RuleSet, error) {
	key := version
	if key == "" {
		key = activeKey
	}
	if rs, ok := p.cache.Get(key); ok {
		return rs, nil
	}

	// The load is shared, so it must not be cut short by one caller.
	loadCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (interface{}, error) {
		if rs, ok := p.cache.Get(key); ok {
			return rs, nil
		}
		rs, err := p.load(loadCtx, version)
		if err != nil {
			return nil, err
		}
		p.cache.Add(key, rs)
		if key == activeKey {
			p.cache.Add(rs.Version, rs)
		}
		return rs, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ruleset.Provider.Get: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*RuleSet), nil
	}
}

func (p *Provider) load(ctx context.Context, version string) (*RuleSet, error) {
	var (
		rec *domain.RuleSetRecord
		err error
	)
	if version == "" {
		rec, err = p.store.Active(ctx)
	} else {
		rec, err = p.store.Get(ctx, version)
	}
	if err != nil {
		return nil, fmt.Errorf("ruleset.Provider.load: %w", err)
	}
	return Load(rec, p.registry)
}

// Preload loads the active rule set so configuration errors surface at
// startup.
func (p *Provider) Preload(ctx context.Context) (*RuleSet, error) {
	return p.Get(ctx, "")
}

// Purge drops every cached snapshot.
func (p *Provider) Purge() {
	p.cache.Purge()
}

// Versions lists the versions available in the store.
func (p *Provider) Versions(ctx context.Context) ([]domain.RuleSetRecord, error) {
	recs, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ruleset.Provider.Versions: %w", err)
	}
	return recs, nil
}
