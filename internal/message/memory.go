package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu        sync.RWMutex
	records   []Record
	customers map[customerKey]Customer
}

type customerKey struct {
	tenantID string
	userID   string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{customers: make(map[customerKey]Customer)}
}

func (r *MemoryRepository) Append(_ context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepository) RecentByUser(_ context.Context, tenantID, userID string, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []Record
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.UserID == userID {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepository) UpsertCustomer(_ context.Context, tenantID, userID, displayName string, at time.Time) error {
	key := customerKey{tenantID: tenantID, userID: userID}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[key]
	if !ok {
		firstAt := at
		c = Customer{TenantID: tenantID, UserID: userID, FirstInteractionAt: &firstAt}
	}
	if displayName != "" {
		c.DisplayName = displayName
	}
	lastAt := at
	c.LastInteractionAt = &lastAt
	r.customers[key] = c
	return nil
}

func (r *MemoryRepository) GetCustomer(_ context.Context, tenantID, userID string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[customerKey{tenantID: tenantID, userID: userID}]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}
