package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryIntentRepository struct {
	mu      sync.Mutex
	intents map[string]map[string]Intent
}

var _ IntentRepository = (*MemoryIntentRepository)(nil)

func NewMemoryIntentRepository() *MemoryIntentRepository {
	return &MemoryIntentRepository{intents: make(map[string]map[string]Intent)}
}

func (r *MemoryIntentRepository) Create(_ context.Context, it Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intents[it.TenantID] == nil {
		r.intents[it.TenantID] = make(map[string]Intent)
	}
	r.intents[it.TenantID][it.ID] = it
	return nil
}

func (r *MemoryIntentRepository) Get(_ context.Context, tenantID, id string) (Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.intents[tenantID][id]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	return it, nil
}

func (r *MemoryIntentRepository) RecentByTenant(_ context.Context, tenantID string, limit int) ([]Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recentIntents(r.intents[tenantID], limit, func(Intent) bool { return true }), nil
}

func (r *MemoryIntentRepository) RecentByCustomer(_ context.Context, tenantID, customerID string, limit int) ([]Intent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recentIntents(r.intents[tenantID], limit, func(it Intent) bool {
		return it.CustomerID == customerID
	}), nil
}

func (r *MemoryIntentRepository) Transition(_ context.Context, tenantID, id string, from, to IntentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.intents[tenantID][id]
	if !ok {
		return false, ErrIntentNotFound
	}
	if it.Status != from {
		return false, nil
	}
	it.Status = to
	it.UpdatedAt = time.Now().UTC()
	r.intents[tenantID][id] = it
	return true, nil
}

func (r *MemoryIntentRepository) Update(_ context.Context, it Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.intents[it.TenantID][it.ID]
	if !ok {
		return ErrIntentNotFound
	}
	existing.EvidenceRef = it.EvidenceRef
	existing.EvidenceMessageID = it.EvidenceMessageID
	existing.OCRAmount = it.OCRAmount
	existing.OCRConfidence = it.OCRConfidence
	existing.MatchVerdict = it.MatchVerdict
	existing.PaymentID = it.PaymentID
	existing.Amount = it.Amount
	existing.Currency = it.Currency
	existing.UpdatedAt = time.Now().UTC()
	r.intents[it.TenantID][it.ID] = existing
	return nil
}

func (r *MemoryIntentRepository) ExpireOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, byID := range r.intents {
		for id, it := range byID {
			if it.Status == StatusPending && it.CreatedAt.Before(cutoff) {
				it.Status = StatusExpired
				it.UpdatedAt = time.Now().UTC()
				byID[id] = it
				n++
			}
		}
	}
	return n, nil
}

func recentIntents(m map[string]Intent, limit int, keep func(Intent) bool) []Intent {
	var out []Intent
	for _, it := range m {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments []Payment
}

var _ PaymentRepository = (*MemoryPaymentRepository)(nil)

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, p)
	return nil
}

func (r *MemoryPaymentRepository) AttachEvidence(_ context.Context, tenantID, paymentID, evidenceRef, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.payments {
		if r.payments[i].TenantID == tenantID && r.payments[i].ID == paymentID {
			r.payments[i].EvidenceRef = evidenceRef
			r.payments[i].EvidenceMessageID = messageID
			return nil
		}
	}
	return ErrIntentNotFound
}

func (r *MemoryPaymentRepository) ListRecent(_ context.Context, tenantID string, limit int) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PaidAt.After(out[j].PaidAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryQuoteRepository struct {
	mu     sync.Mutex
	quotes map[string]Quote
}

var _ QuoteRepository = (*MemoryQuoteRepository)(nil)

func NewMemoryQuoteRepository() *MemoryQuoteRepository {
	return &MemoryQuoteRepository{quotes: make(map[string]Quote)}
}

func (r *MemoryQuoteRepository) Set(_ context.Context, q Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[q.TenantID] = q
	return nil
}

func (r *MemoryQuoteRepository) Get(_ context.Context, tenantID string) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[tenantID]
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}

func (r *MemoryQuoteRepository) Clear(_ context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.quotes, tenantID)
	return nil
}

func (r *MemoryQuoteRepository) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, q := range r.quotes {
		if q.ExpiresAt.Before(cutoff) {
			delete(r.quotes, id)
			removed++
		}
	}
	return removed, nil
}
