package message

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Record is one logged message, inbound or outbound, scoped to a
// tenant and chat user.
type Record struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	HasMedia  bool      `json:"has_media"`
	CreatedAt time.Time `json:"created_at"`
}

// Customer tracks one chat user per tenant.
type Customer struct {
	TenantID           string     `json:"tenant_id"`
	UserID             string     `json:"user_id"`
	DisplayName        string     `json:"display_name,omitempty"`
	FirstInteractionAt *time.Time `json:"first_interaction_at,omitempty"`
	LastInteractionAt  *time.Time `json:"last_interaction_at,omitempty"`
}

// Repository persists messages and customers. Recency queries return
// the newest records first, capped by limit; callers filter further in
// memory rather than asking for composite indexes.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	RecentByUser(ctx context.Context, tenantID, userID string, limit int) ([]Record, error)
	UpsertCustomer(ctx context.Context, tenantID, userID, displayName string, at time.Time) error
	GetCustomer(ctx context.Context, tenantID, userID string) (Customer, error)
}
