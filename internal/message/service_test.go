package message

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), NewMemoryRepository())
}

func TestLogInboundTracksCustomer(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.LogInbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", Body: "hello", CreatedAt: at,
	}))

	c, err := svc.Customer(ctx, "shop-1", "U1")
	require.NoError(t, err)
	require.NotNil(t, c.FirstInteractionAt)
	assert.Equal(t, at, *c.FirstInteractionAt)
	assert.Equal(t, at, *c.LastInteractionAt)

	later := at.Add(time.Hour)
	require.NoError(t, svc.LogInbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", Body: "again", CreatedAt: later,
	}))
	c, err = svc.Customer(ctx, "shop-1", "U1")
	require.NoError(t, err)
	assert.Equal(t, at, *c.FirstInteractionAt)
	assert.Equal(t, later, *c.LastInteractionAt)
}

func TestRecentMediaByUserFiltersWindowAndDirection(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.LogInbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", HasMedia: true, MediaRef: "old-slip",
		CreatedAt: base.Add(-20 * time.Minute),
	}))
	require.NoError(t, svc.LogInbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", HasMedia: true, MediaRef: "recent-slip",
		CreatedAt: base.Add(-5 * time.Minute),
	}))
	require.NoError(t, svc.LogInbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", Body: "text only",
		CreatedAt: base.Add(-time.Minute),
	}))
	require.NoError(t, svc.LogOutbound(ctx, Record{
		TenantID: "shop-1", UserID: "U1", HasMedia: true, MediaRef: "our-qr",
		CreatedAt: base.Add(-2 * time.Minute),
	}))

	media, err := svc.RecentMediaByUser(ctx, "shop-1", "U1", base.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "recent-slip", media[0].MediaRef)
}

func TestRecentByUserNewestFirst(t *testing.T) {
	t.Parallel()

	svc := newTestService()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.LogInbound(ctx, Record{
			TenantID: "shop-1", UserID: "U1", Body: string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := svc.RecentByUser(ctx, "shop-1", "U1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].Body)
	assert.Equal(t, "b", records[1].Body)
}
