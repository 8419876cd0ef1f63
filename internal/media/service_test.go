package media_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplinkhq/shoplink/internal/media"
	memprovider "github.com/shoplinkhq/shoplink/internal/media/providers/memory"
)

func newService() *media.Service {
	return media.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), memprovider.New())
}

func TestIngestAndOpen(t *testing.T) {
	t.Parallel()

	svc := newService()
	asset, err := svc.Ingest(context.Background(), media.IngestInput{
		TenantID: "shop-1",
		Mime:     "image/jpeg",
		Reader:   strings.NewReader("slip bytes"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.StorageKey, "shop-1/evidence/"))
	assert.Equal(t, int64(len("slip bytes")), asset.SizeBytes)

	reader, err := svc.Open(context.Background(), "shop-1", asset.StorageKey)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "slip bytes", string(data))
}

func TestIngestSameBytesSameKey(t *testing.T) {
	t.Parallel()

	svc := newService()
	first, err := svc.Ingest(context.Background(), media.IngestInput{
		TenantID: "shop-1", Mime: "image/png", Reader: strings.NewReader("same"),
	})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), media.IngestInput{
		TenantID: "shop-1", Mime: "image/png", Reader: strings.NewReader("same"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.StorageKey, second.StorageKey)
}

func TestOpenRejectsForeignTenant(t *testing.T) {
	t.Parallel()

	svc := newService()
	asset, err := svc.Ingest(context.Background(), media.IngestInput{
		TenantID: "shop-1", Mime: "image/jpeg", Reader: strings.NewReader("slip"),
	})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), "shop-2", asset.StorageKey)
	assert.ErrorIs(t, err, media.ErrAssetNotFound)
}

func TestIngestRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	svc := newService()
	_, err := svc.Ingest(context.Background(), media.IngestInput{
		TenantID: "shop-1",
		Mime:     "image/jpeg",
		Reader:   strings.NewReader("0123456789"),
		MaxBytes: 4,
	})
	assert.ErrorIs(t, err, media.ErrAssetTooLarge)
}
