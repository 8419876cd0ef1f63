package owners

import (
	"context"
	"sync"
	"time"
)

type MemoryBindingRepository struct {
	mu       sync.RWMutex
	bindings map[bindingKey]Binding
}

type bindingKey struct {
	tenantID string
	userID   string
}

var _ BindingRepository = (*MemoryBindingRepository)(nil)

func NewMemoryBindingRepository() *MemoryBindingRepository {
	return &MemoryBindingRepository{bindings: make(map[bindingKey]Binding)}
}

func (r *MemoryBindingRepository) Get(_ context.Context, tenantID, userID string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[bindingKey{tenantID, userID}]
	if !ok {
		return Binding{}, ErrBindingNotFound
	}
	return b, nil
}

func (r *MemoryBindingRepository) Upsert(_ context.Context, b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bindingKey{b.TenantID, b.UserID}
	now := time.Now().UTC()
	if existing, ok := r.bindings[key]; ok {
		b.CreatedAt = existing.CreatedAt
		b.IsPrimary = existing.IsPrimary
	} else if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	r.bindings[key] = b
	return nil
}

func (r *MemoryBindingRepository) PromotePrimary(_ context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.bindings[bindingKey{tenantID, userID}]
	if !ok || !target.Active {
		return ErrBindingNotFound
	}
	if target.IsPrimary {
		return nil
	}
	for key, b := range r.bindings {
		if key.tenantID == tenantID && b.IsPrimary {
			return ErrPrimaryExists
		}
	}
	target.IsPrimary = true
	target.UpdatedAt = time.Now().UTC()
	r.bindings[bindingKey{tenantID, userID}] = target
	return nil
}

func (r *MemoryBindingRepository) ListActive(_ context.Context, tenantID string) ([]Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []Binding
	for key, b := range r.bindings {
		if key.tenantID == tenantID && b.Active {
			active = append(active, b)
		}
	}
	return active, nil
}

func (r *MemoryBindingRepository) Deactivate(_ context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bindingKey{tenantID, userID}
	b, ok := r.bindings[key]
	if !ok {
		return ErrBindingNotFound
	}
	b.Active = false
	b.IsPrimary = false
	b.UpdatedAt = time.Now().UTC()
	r.bindings[key] = b
	return nil
}

type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

var _ ProfileRepository = (*MemoryProfileRepository)(nil)

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[string]Profile)}
}

func (r *MemoryProfileRepository) Get(_ context.Context, tenantID string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[tenantID], nil
}

func (r *MemoryProfileRepository) Save(_ context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	r.profiles[p.TenantID] = p
	return nil
}

type MemoryLinkRepository struct {
	mu    sync.Mutex
	links map[linkKey]MagicLink
}

type linkKey struct {
	tenantID string
	tokenID  string
}

var _ LinkRepository = (*MemoryLinkRepository)(nil)

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{links: make(map[linkKey]MagicLink)}
}

func (r *MemoryLinkRepository) Create(_ context.Context, link MagicLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[linkKey{link.TenantID, link.TokenID}] = link
	return nil
}

func (r *MemoryLinkRepository) ConsumeOnce(_ context.Context, tenantID, tokenID string, now time.Time) (MagicLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := linkKey{tenantID, tokenID}
	link, ok := r.links[key]
	if !ok || link.Revoked || link.UsedAt != nil || now.After(link.ExpiresAt) {
		return MagicLink{}, ErrLinkInvalid
	}
	usedAt := now
	link.UsedAt = &usedAt
	r.links[key] = link
	return link, nil
}

func (r *MemoryLinkRepository) Revoke(_ context.Context, tenantID, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := linkKey{tenantID, tokenID}
	link, ok := r.links[key]
	if !ok {
		return ErrLinkInvalid
	}
	link.Revoked = true
	r.links[key] = link
	return nil
}

func (r *MemoryLinkRepository) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, link := range r.links {
		if link.ExpiresAt.Before(cutoff) {
			delete(r.links, key)
			removed++
		}
	}
	return removed, nil
}
