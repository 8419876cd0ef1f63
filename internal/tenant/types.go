package tenant

import (
	"context"
	"time"
)

// ChannelRole tells which audience a bot channel serves. Admin
// channels talk to shop staff; consumer channels are the storefront.
type ChannelRole string

const (
	RoleAdmin    ChannelRole = "admin"
	RoleConsumer ChannelRole = "consumer"
)

// Channel is one messaging endpoint owned by a tenant. RoutingID is
// the provider-assigned bot user id that appears as the webhook
// destination.
type Channel struct {
	Name       string      `json:"name"`
	Role       ChannelRole `json:"role"`
	RoutingID  string      `json:"routing_id"`
	Credential string      `json:"credential,omitempty"`
	Storefront bool        `json:"storefront"`
}

// Tenant is one shop with its credential set and channels.
type Tenant struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	ChannelSecret   string    `json:"-"`
	AccessToken     string    `json:"-"`
	SecretRef       string    `json:"secret_ref,omitempty"`
	TokenRef        string    `json:"token_ref,omitempty"`
	LegacyChannelID string    `json:"legacy_channel_id,omitempty"`
	Active          bool      `json:"active"`
	Channels        []Channel `json:"channels,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StorefrontRoutingID returns the routing id of the consumer-facing
// channel, or empty when none is registered.
func (t Tenant) StorefrontRoutingID() string {
	for _, ch := range t.Channels {
		if ch.Storefront {
			return ch.RoutingID
		}
	}
	return ""
}

// Repository is the persistence surface for tenants and their channels.
type Repository interface {
	GetByID(ctx context.Context, id string) (Tenant, error)
	// GetByRoutingID looks a tenant up by one of its channels'
	// provider-assigned bot user ids.
	GetByRoutingID(ctx context.Context, routingID string) (Tenant, error)
	// GetByLegacyChannelID supports the numeric channel ids older
	// tenants were registered under.
	GetByLegacyChannelID(ctx context.Context, channelID string) (Tenant, error)
	Upsert(ctx context.Context, t Tenant) error
	ListActive(ctx context.Context) ([]Tenant, error)
}

// SecretSource resolves credential references to secret values. The
// inline source returns what is stored on the tenant row; deployments
// that keep secrets elsewhere plug in their own source.
type SecretSource interface {
	ResolveSecret(ctx context.Context, t Tenant) (channelSecret, accessToken string, err error)
}

// InlineSecrets reads credentials straight off the tenant record.
type InlineSecrets struct{}

func (InlineSecrets) ResolveSecret(_ context.Context, t Tenant) (string, string, error) {
	if t.ChannelSecret == "" && t.AccessToken == "" {
		return "", "", ErrNoCredentials
	}
	return t.ChannelSecret, t.AccessToken, nil
}
