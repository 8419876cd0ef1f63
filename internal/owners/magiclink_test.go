package owners

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/config"
)

func newLinkService(t *testing.T) (*LinkService, *MemoryLinkRepository) {
	t.Helper()
	repo := NewMemoryLinkRepository()
	svc := NewLinkService(testLogger(), repo, config.LineConfig{
		InviteSecret:   "invite-secret",
		InviteBaseURL:  "https://link.example.com",
		InviteLifetime: time.Hour,
	})
	return svc, repo
}

func tokenFromURL(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestMintAndConsume(t *testing.T) {
	t.Parallel()

	svc, _ := newLinkService(t)
	ctx := context.Background()

	link, linkURL, err := svc.Mint(ctx, "shop-1", ScopeBindOwner, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(linkURL, "https://link.example.com/link?token="))
	assert.Equal(t, ScopeBindOwner, link.Scope)

	consumed, err := svc.Consume(ctx, tokenFromURL(t, linkURL))
	require.NoError(t, err)
	assert.Equal(t, "shop-1", consumed.TenantID)
	assert.Equal(t, link.TokenID, consumed.TokenID)
	require.NotNil(t, consumed.UsedAt)
}

func TestConsumeIsSingleUse(t *testing.T) {
	t.Parallel()

	svc, _ := newLinkService(t)
	ctx := context.Background()

	_, linkURL, err := svc.Mint(ctx, "shop-1", ScopeBindOwner, "")
	require.NoError(t, err)
	token := tokenFromURL(t, linkURL)

	_, err = svc.Consume(ctx, token)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrLinkInvalid)
}

func TestConsumeExpiredLink(t *testing.T) {
	t.Parallel()

	svc, _ := newLinkService(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	_, linkURL, err := svc.Mint(ctx, "shop-1", ScopeBindOwner, "")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = svc.Consume(ctx, tokenFromURL(t, linkURL))
	assert.ErrorIs(t, err, ErrLinkInvalid)
}

func TestConsumeRevokedLink(t *testing.T) {
	t.Parallel()

	svc, _ := newLinkService(t)
	ctx := context.Background()

	link, linkURL, err := svc.Mint(ctx, "shop-1", ScopeBindOwner, "")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "shop-1", link.TokenID))

	_, err = svc.Consume(ctx, tokenFromURL(t, linkURL))
	assert.ErrorIs(t, err, ErrLinkInvalid)
}

func TestConsumeRejectsForgedToken(t *testing.T) {
	t.Parallel()

	svc, _ := newLinkService(t)
	_, err := svc.Consume(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrLinkInvalid)

	// Token signed with a different secret.
	other := NewLinkService(testLogger(), NewMemoryLinkRepository(), config.LineConfig{
		InviteSecret:   "other-secret",
		InviteBaseURL:  "https://link.example.com",
		InviteLifetime: time.Hour,
	})
	_, linkURL, err := other.Mint(context.Background(), "shop-1", ScopeBindOwner, "")
	require.NoError(t, err)
	_, err = svc.Consume(context.Background(), tokenFromURL(t, linkURL))
	assert.ErrorIs(t, err, ErrLinkInvalid)
}
