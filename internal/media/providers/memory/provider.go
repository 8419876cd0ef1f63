// Package memory implements media.StorageProvider in process memory,
// for tests and single-node development runs.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/shoplinkhq/shoplink/internal/media"
)

type Provider struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func New() *Provider {
	return &Provider{blobs: make(map[string][]byte)}
}

func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[key] = data
	return nil
}

func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p.mu.RLock()
	data, ok := p.blobs[key]
	p.mu.RUnlock()
	if !ok {
		return nil, media.ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *Provider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blobs, key)
	return nil
}
