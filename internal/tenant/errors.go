package tenant

import "errors"

var (
	// ErrNotFound indicates no tenant matches the lookup key.
	ErrNotFound = errors.New("tenant not found")
	// ErrNoCredentials indicates the tenant record carries no usable credentials.
	ErrNoCredentials = errors.New("tenant has no credentials")
	// ErrInactive indicates the tenant exists but is disabled.
	ErrInactive = errors.New("tenant is inactive")
	// ErrMultipleStorefronts indicates more than one channel is flagged
	// as the consumer-facing storefront.
	ErrMultipleStorefronts = errors.New("tenant has multiple storefront channels")
)
