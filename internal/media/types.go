package media

import (
	"context"
	"io"
	"time"
)

// Asset is the domain representation of a stored evidence blob,
// typically a payment slip image attached by a customer.
type Asset struct {
	TenantID    string    `json:"tenant_id"`
	ContentHash string    `json:"content_hash"`
	Mime        string    `json:"mime"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// IngestInput carries the data needed to persist a new evidence blob.
type IngestInput struct {
	TenantID string
	Mime     string
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
	// MaxBytes optionally overrides the default size limit.
	MaxBytes int64
}

// StorageProvider abstracts blob storage operations. Keys are always
// prefixed with the tenant id so tenants cannot read each other's
// evidence.
type StorageProvider interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
