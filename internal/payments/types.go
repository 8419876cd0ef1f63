package payments

import (
	"context"
	"errors"
	"time"
)

// IntentStatus tracks the reconciliation lifecycle of a claim.
type IntentStatus string

const (
	StatusPending   IntentStatus = "pending"
	StatusConfirmed IntentStatus = "confirmed"
	StatusRejected  IntentStatus = "rejected"
	StatusExpired   IntentStatus = "expired"
)

// Verdict is the outcome of checking evidence against the claimed
// amount. Empty means no automated check ran yet.
type Verdict string

const (
	VerdictMatch      Verdict = "match"
	VerdictMismatch   Verdict = "mismatch"
	VerdictUnreadable Verdict = "unreadable"
)

// Intent is a customer's claim that a payment was made, waiting for
// evidence and an owner decision.
type Intent struct {
	ID                string       `json:"id"`
	TenantID          string       `json:"tenant_id"`
	CustomerID        string       `json:"customer_id"`
	Amount            float64      `json:"amount"`
	Currency          string       `json:"currency"`
	Status            IntentStatus `json:"status"`
	ConfirmCode       string       `json:"confirm_code"`
	EvidenceRef       string       `json:"evidence_ref,omitempty"`
	EvidenceMessageID string       `json:"evidence_message_id,omitempty"`
	OCRAmount         *float64     `json:"ocr_amount,omitempty"`
	OCRConfidence     *float64     `json:"ocr_confidence,omitempty"`
	MatchVerdict      Verdict      `json:"match_verdict,omitempty"`
	PaymentID         string       `json:"payment_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Payment is the append-only record written when an owner confirms.
type Payment struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	CustomerID        string     `json:"customer_id"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	Method            string     `json:"method"`
	Status            string     `json:"status"`
	EvidenceRef       string     `json:"evidence_ref,omitempty"`
	EvidenceMessageID string     `json:"evidence_message_id,omitempty"`
	IntentID          string     `json:"intent_id,omitempty"`
	PaidAt            time.Time  `json:"paid_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
}

// Quote is the owner's most recent price for the next customer
// payment. One per tenant, most recent wins.
type Quote struct {
	TenantID   string    `json:"tenant_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	OwnerID    string    `json:"owner_id"`
	SourceText string    `json:"source_text,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

var (
	// ErrIntentNotFound indicates no intent matches the lookup.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrNoQuote indicates the tenant has no live quote.
	ErrNoQuote = errors.New("no pending quote")
)

// IntentRepository persists intents. Recency queries return newest
// first, capped by limit; window filtering happens in the caller.
type IntentRepository interface {
	Create(ctx context.Context, it Intent) error
	Get(ctx context.Context, tenantID, id string) (Intent, error)
	RecentByTenant(ctx context.Context, tenantID string, limit int) ([]Intent, error)
	RecentByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]Intent, error)
	// Transition moves the intent between statuses only when it still
	// holds the expected one. Returns false when the guard failed.
	Transition(ctx context.Context, tenantID, id string, from, to IntentStatus) (bool, error)
	// Update overwrites the mutable evidence and verdict fields.
	Update(ctx context.Context, it Intent) error
	// ExpireOlderThan closes pending intents created before the cutoff.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentRepository persists confirmed payments. Records are append
// only; the single mutation is backfilling late evidence.
type PaymentRepository interface {
	Create(ctx context.Context, p Payment) error
	AttachEvidence(ctx context.Context, tenantID, paymentID, evidenceRef, messageID string) error
	ListRecent(ctx context.Context, tenantID string, limit int) ([]Payment, error)
}

// QuoteRepository persists the per-tenant pending quote.
type QuoteRepository interface {
	Set(ctx context.Context, q Quote) error
	Get(ctx context.Context, tenantID string) (Quote, error)
	Clear(ctx context.Context, tenantID string) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
