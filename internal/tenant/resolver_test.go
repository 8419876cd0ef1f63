package tenant

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/config"
)

func newTestResolver(t *testing.T, cfg config.TenantConfig) (*Resolver, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(log, repo, nil, cfg), repo
}

func seedTenant(t *testing.T, repo *MemoryRepository, id string) Tenant {
	t.Helper()
	tn := Tenant{
		ID:              id,
		DisplayName:     "Shop " + id,
		ChannelSecret:   "secret-" + id,
		AccessToken:     "token-" + id,
		LegacyChannelID: "1234567890",
		Active:          true,
		Channels: []Channel{
			{Name: "admin", Role: RoleAdmin, RoutingID: "Uadmin" + id},
			{Name: "storefront", Role: RoleConsumer, RoutingID: "Ushop" + id, Storefront: true},
		},
	}
	require.NoError(t, repo.Upsert(context.Background(), tn))
	return tn
}

func TestResolveByRoutingID(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{CacheTTL: time.Minute})
	seedTenant(t, repo, "shop-1")

	res, err := r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", res.Tenant.ID)
	assert.Equal(t, RoleAdmin, res.Context)
	assert.Equal(t, "secret-shop-1", res.ChannelSecret)

	res, err = r.Resolve(context.Background(), "Ushopshop-1")
	require.NoError(t, err)
	assert.Equal(t, RoleConsumer, res.Context)
}

func TestResolveLegacyNumericDefaultsToAdmin(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{})
	seedTenant(t, repo, "shop-1")

	res, err := r.Resolve(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", res.Tenant.ID)
	assert.Equal(t, RoleAdmin, res.Context)
}

func TestResolveDevFallback(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{DevFallbackID: "shop-dev"})
	seedTenant(t, repo, "shop-dev")

	res, err := r.Resolve(context.Background(), "Uunknown")
	require.NoError(t, err)
	assert.Equal(t, "shop-dev", res.Tenant.ID)
}

func TestResolveUnknownDestination(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{})
	seedTenant(t, repo, "shop-1")

	_, err := r.Resolve(context.Background(), "Unowhere")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveInactiveTenant(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{})
	tn := seedTenant(t, repo, "shop-1")
	tn.Active = false
	require.NoError(t, repo.Upsert(context.Background(), tn))

	_, err := r.Resolve(context.Background(), "Uadminshop-1")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestCacheExpiryWithFakeClock(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{CacheTTL: time.Minute})
	tn := seedTenant(t, repo, "shop-1")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return now })

	res, err := r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)
	assert.Equal(t, "secret-shop-1", res.ChannelSecret)

	// Rotate the secret behind the cache. Within TTL the stale value
	// is still served.
	tn.ChannelSecret = "rotated"
	require.NoError(t, repo.Upsert(context.Background(), tn))

	res, err = r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)
	assert.Equal(t, "secret-shop-1", res.ChannelSecret)

	now = now.Add(2 * time.Minute)
	res, err = r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", res.ChannelSecret)
}

func TestInvalidateDropsCachedResolutions(t *testing.T) {
	t.Parallel()

	r, repo := newTestResolver(t, config.TenantConfig{CacheTTL: time.Hour})
	tn := seedTenant(t, repo, "shop-1")

	_, err := r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)

	tn.ChannelSecret = "rotated"
	require.NoError(t, repo.Upsert(context.Background(), tn))
	r.Invalidate("shop-1")

	res, err := r.Resolve(context.Background(), "Uadminshop-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", res.ChannelSecret)
}

func TestUpsertRejectsSecondStorefront(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	err := repo.Upsert(context.Background(), Tenant{
		ID:     "shop-1",
		Active: true,
		Channels: []Channel{
			{Name: "storefront", Role: RoleConsumer, RoutingID: "Ushop1", Storefront: true},
			{Name: "outlet", Role: RoleConsumer, RoutingID: "Ushop2", Storefront: true},
		},
	})
	require.ErrorIs(t, err, ErrMultipleStorefronts)

	_, err = repo.GetByID(context.Background(), "shop-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
