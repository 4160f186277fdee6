// Package sentinel holds infrastructure sentinel errors shared across adapters.
package sentinel

import "errors"

// Cache tiers return these, usually wrapped, so callers can tell "tier down"
// apart from a bad request to the tier.
//
// - ErrUnavailable: store is not configured or cannot be reached
// - ErrInvalidState: store asked to do something that makes no sense (e.g. a non-positive TTL)
var (
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
