package owners

import (
	"context"
	"errors"
	"time"
)

// Binding links a chat user to a tenant as staff. At most one binding
// per tenant carries IsPrimary.
type Binding struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Active     bool      `json:"active"`
	IsPrimary  bool      `json:"is_primary"`
	Roles      string    `json:"roles"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Profile is the tenant's editable business card, maintained by the
// owner over chat.
type Profile struct {
	TenantID        string    `json:"tenant_id"`
	FullName        string    `json:"full_name,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	BusinessName    string    `json:"business_name,omitempty"`
	BotName         string    `json:"bot_name,omitempty"`
	LocationLat     *float64  `json:"location_lat,omitempty"`
	LocationLng     *float64  `json:"location_lng,omitempty"`
	LocationAddress string    `json:"location_address,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MagicLink is a single-use, expiring grant minted for owner binding
// or dashboard access.
type MagicLink struct {
	TenantID     string     `json:"tenant_id"`
	TokenID      string     `json:"token_id"`
	Scope        string     `json:"scope"`
	TargetUserID string     `json:"target_user_id,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Revoked      bool       `json:"revoked"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

const (
	ScopeBindOwner = "bind_owner"
	ScopeDashboard = "dashboard"
)

var (
	// ErrBindingNotFound indicates the chat user is not bound to the tenant.
	ErrBindingNotFound = errors.New("owner binding not found")
	// ErrPrimaryExists indicates the tenant already has a primary owner.
	ErrPrimaryExists = errors.New("primary owner already bound")
	// ErrLinkInvalid covers unknown, expired, revoked, and already-used links.
	ErrLinkInvalid = errors.New("magic link invalid")
)

// BindingRepository persists owner bindings.
type BindingRepository interface {
	Get(ctx context.Context, tenantID, userID string) (Binding, error)
	// Upsert creates or refreshes a binding. Re-binding the same user
	// is idempotent.
	Upsert(ctx context.Context, b Binding) error
	// PromotePrimary marks the binding primary only when the tenant
	// has no primary yet. Returns ErrPrimaryExists otherwise.
	PromotePrimary(ctx context.Context, tenantID, userID string) error
	ListActive(ctx context.Context, tenantID string) ([]Binding, error)
	Deactivate(ctx context.Context, tenantID, userID string) error
}

// ProfileRepository persists owner profiles.
type ProfileRepository interface {
	Get(ctx context.Context, tenantID string) (Profile, error)
	Save(ctx context.Context, p Profile) error
}

// LinkRepository persists magic links.
type LinkRepository interface {
	Create(ctx context.Context, link MagicLink) error
	// ConsumeOnce atomically marks the link used. Exactly one call
	// succeeds per link; later calls return ErrLinkInvalid.
	ConsumeOnce(ctx context.Context, tenantID, tokenID string, now time.Time) (MagicLink, error)
	Revoke(ctx context.Context, tenantID, tokenID string) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
