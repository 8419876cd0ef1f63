package tenant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps tenants in process memory. Used by tests and
// single-node development runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tenants: make(map[string]Tenant)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) GetByRoutingID(_ context.Context, routingID string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		for _, ch := range t.Channels {
			if ch.RoutingID == routingID {
				return t, nil
			}
		}
	}
	return Tenant{}, ErrNotFound
}

func (r *MemoryRepository) GetByLegacyChannelID(_ context.Context, channelID string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.LegacyChannelID != "" && t.LegacyChannelID == channelID {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (r *MemoryRepository) Upsert(_ context.Context, t Tenant) error {
	// Mirrors the partial unique index on tenant_channels.
	storefronts := 0
	for _, ch := range t.Channels {
		if ch.Storefront {
			storefronts++
		}
	}
	if storefronts > 1 {
		return ErrMultipleStorefronts
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.tenants[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.tenants[t.ID] = t
	return nil
}

func (r *MemoryRepository) ListActive(_ context.Context) ([]Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenants := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if t.Active {
			tenants = append(tenants, t)
		}
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}
