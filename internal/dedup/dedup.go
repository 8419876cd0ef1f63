// Package dedup provides exactly-once claims over webhook event ids.
// The provider redelivers events on timeouts and restarts; a claim is
// an atomic create-if-absent marker, so exactly one worker wins each
// event id per tenant.
package dedup

import (
	"context"
	"time"
)

// Store records event claims.
type Store interface {
	// Claim returns true when this call is the first to see the event
	// id for the tenant. An empty event id cannot be deduplicated and
	// always claims fresh.
	Claim(ctx context.Context, tenantID, eventID string) (bool, error)
	// PurgeOlderThan drops markers seen before the cutoff and returns
	// how many were removed. Redelivery horizons are short; markers
	// past retention only cost storage.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
