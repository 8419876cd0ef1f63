package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
)

const (
	// MaxAssetBytes is the default max accepted payload size. Slip
	// photos are small; anything bigger is not evidence.
	MaxAssetBytes int64 = 20 * 1024 * 1024
)

// Service persists and retrieves evidence blobs. Content addressing by
// sha256 makes re-sent slips idempotent: the same photo lands on the
// same key.
type Service struct {
	provider StorageProvider
	logger   *slog.Logger
}

func NewService(log *slog.Logger, provider StorageProvider) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider: provider,
		logger:   log.With(slog.String("service", "media")),
	}
}

// Ingest stores an evidence blob and returns its asset descriptor.
// The storage key doubles as the evidence reference recorded on
// payment intents.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Asset, error) {
	if s.provider == nil {
		return Asset{}, ErrProviderUnavailable
	}
	if strings.TrimSpace(input.TenantID) == "" {
		return Asset{}, fmt.Errorf("tenant id is required")
	}
	if input.Reader == nil {
		return Asset{}, fmt.Errorf("reader is required")
	}

	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	data, err := ReadAllWithLimit(input.Reader, maxBytes)
	if err != nil {
		return Asset{}, fmt.Errorf("read input: %w", err)
	}
	if len(data) == 0 {
		return Asset{}, fmt.Errorf("asset payload is empty")
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])
	storageKey := path.Join(
		input.TenantID,
		"evidence",
		contentHash[:4],
		contentHash+extensionFromMime(input.Mime),
	)

	if err := s.provider.Put(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return Asset{}, fmt.Errorf("store evidence: %w", err)
	}
	return Asset{
		TenantID:    input.TenantID,
		ContentHash: contentHash,
		Mime:        coalesce(input.Mime, "application/octet-stream"),
		SizeBytes:   int64(len(data)),
		StorageKey:  storageKey,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Open returns a reader for a stored evidence blob by its storage key.
// The tenant id must match the key prefix.
func (s *Service) Open(ctx context.Context, tenantID, storageKey string) (io.ReadCloser, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	if !strings.HasPrefix(storageKey, tenantID+"/") {
		return nil, ErrAssetNotFound
	}
	reader, err := s.provider.Open(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return reader, nil
}

func extensionFromMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
