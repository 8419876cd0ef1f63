package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shoplinkhq/shoplink/internal/config"
)

// Resolution is the outcome of mapping a webhook destination to a
// tenant: the tenant itself, its live credentials, and which audience
// the destination channel serves.
type Resolution struct {
	Tenant        Tenant
	ChannelSecret string
	AccessToken   string
	// Context is the audience of the matched channel. Unknown
	// destinations and legacy matches default to admin: treating
	// staff commands as customer chatter is the worse failure mode.
	Context ChannelRole
}

// Resolver maps webhook destinations to tenants with a read-through
// TTL cache. Lookup order: channel routing id, then the legacy
// numeric channel id, then the configured development fallback.
type Resolver struct {
	repo    Repository
	secrets SecretSource
	logger  *slog.Logger

	ttl        time.Duration
	fallbackID string
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	res     Resolution
	expires time.Time
}

func NewResolver(log *slog.Logger, repo Repository, secrets SecretSource, cfg config.TenantConfig) *Resolver {
	if secrets == nil {
		secrets = InlineSecrets{}
	}
	return &Resolver{
		repo:       repo,
		secrets:    secrets,
		logger:     log.With(slog.String("service", "tenant")),
		ttl:        cfg.CacheTTL,
		fallbackID: cfg.DevFallbackID,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// SetClock overrides the time source. Tests only.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// Resolve maps a webhook destination to a tenant resolution.
func (r *Resolver) Resolve(ctx context.Context, destination string) (Resolution, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return Resolution{}, fmt.Errorf("resolve: empty destination: %w", ErrNotFound)
	}

	if res, ok := r.cached(destination); ok {
		return res, nil
	}

	res, err := r.lookup(ctx, destination)
	if err != nil {
		return Resolution{}, err
	}
	if !res.Tenant.Active {
		return Resolution{}, fmt.Errorf("resolve %s: %w", res.Tenant.ID, ErrInactive)
	}

	secret, token, err := r.secrets.ResolveSecret(ctx, res.Tenant)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve credentials for %s: %w", res.Tenant.ID, err)
	}
	res.ChannelSecret = secret
	res.AccessToken = token

	r.store(destination, res)
	return res, nil
}

// Invalidate drops all cached resolutions for a tenant, forcing the
// next lookup to hit the repository. Called after credential rotation.
func (r *Resolver) Invalidate(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.cache {
		if entry.res.Tenant.ID == tenantID {
			delete(r.cache, key)
		}
	}
}

func (r *Resolver) lookup(ctx context.Context, destination string) (Resolution, error) {
	t, err := r.repo.GetByRoutingID(ctx, destination)
	if err == nil {
		return Resolution{Tenant: t, Context: r.contextFor(t, destination)}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Resolution{}, fmt.Errorf("lookup routing id: %w", err)
	}

	if isNumeric(destination) {
		t, err := r.repo.GetByLegacyChannelID(ctx, destination)
		if err == nil {
			return Resolution{Tenant: t, Context: RoleAdmin}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, fmt.Errorf("lookup legacy channel id: %w", err)
		}
	}

	if r.fallbackID != "" {
		t, err := r.repo.GetByID(ctx, r.fallbackID)
		if err == nil {
			r.logger.Warn("destination resolved via dev fallback",
				slog.String("destination", destination),
				slog.String("tenant", t.ID))
			return Resolution{Tenant: t, Context: RoleAdmin}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, fmt.Errorf("lookup fallback: %w", err)
		}
	}
	return Resolution{}, fmt.Errorf("resolve destination %s: %w", destination, ErrNotFound)
}

func (r *Resolver) contextFor(t Tenant, destination string) ChannelRole {
	for _, ch := range t.Channels {
		if ch.RoutingID == destination {
			if ch.Storefront || ch.Role == RoleConsumer {
				return RoleConsumer
			}
			return RoleAdmin
		}
	}
	return RoleAdmin
}

func (r *Resolver) cached(destination string) (Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[destination]
	if !ok || r.now().After(entry.expires) {
		return Resolution{}, false
	}
	return entry.res, true
}

func (r *Resolver) store(destination string, res Resolution) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[destination] = cacheEntry{res: res, expires: r.now().Add(r.ttl)}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
