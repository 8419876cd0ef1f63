package onboarding

import (
	"context"
	"sync"
)

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[sessionKey]Session
}

type sessionKey struct {
	tenantID string
	userID   string
}

var _ SessionRepository = (*MemorySessionRepository)(nil)

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[sessionKey]Session)}
}

func (r *MemorySessionRepository) Get(_ context.Context, tenantID, userID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionKey{tenantID, userID}]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionKey{s.TenantID, s.UserID}] = s
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey{tenantID, userID})
	return nil
}

type MemoryRequestRepository struct {
	mu       sync.RWMutex
	requests []Request
}

var _ RequestRepository = (*MemoryRequestRepository)(nil)

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{}
}

func (r *MemoryRequestRepository) CreateIfNew(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.TenantID == req.TenantID &&
			existing.UserID == req.UserID &&
			existing.Fingerprint == req.Fingerprint &&
			existing.Status == RequestStatusPending {
			return ErrDuplicateRequest
		}
	}
	r.requests = append(r.requests, req)
	return nil
}

func (r *MemoryRequestRepository) UpdateStatus(_ context.Context, tenantID, requestID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.requests {
		if r.requests[i].TenantID == tenantID && r.requests[i].ID == requestID {
			r.requests[i].Status = status
			return nil
		}
	}
	return nil
}

func (r *MemoryRequestRepository) ListPending(_ context.Context, tenantID string) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []Request
	for _, req := range r.requests {
		if req.TenantID == tenantID && req.Status == RequestStatusPending {
			pending = append(pending, req)
		}
	}
	return pending, nil
}
