// Package cache implements the three validation-result cache tiers and the
// manager that reads through and writes back across them.
//
// Tier 1 (MemoryStore) is process-local. Tier 2 (RedisStore) is shared and
// expires keys server-side. Tier 3 (PostgresStore) is durable and keeps an
// explicit expires_at column. Tiers 2 and 3 report "not configured" and
// "unreachable" as errors wrapping sentinel.ErrUnavailable; the Manager turns
// every tier error into a miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
	"npi-gateway/pkg/platform/sentinel"
)

// Tier names used in logs and metric labels.
const (
	TierMemory   = "memory"
	TierRedis    = "redis"
	TierPostgres = "postgres"
)

// Clock returns the current time. Injected for testability.
type Clock func() time.Time

// Tier is a single cache layer keyed by NPI.
//
// Get returns (result, true, nil) on a hit and (zero, false, nil) on a miss.
// A tier that is not configured or cannot be reached returns an error
// wrapping sentinel.ErrUnavailable.
type Tier interface {
	Name() string
	Get(ctx context.Context, npi domain.NPI) (models.ValidationResult, bool, error)
	Set(ctx context.Context, npi domain.NPI, result models.ValidationResult, ttl time.Duration) error
	Delete(ctx context.Context, npi domain.NPI) error
}

// DurableTier is a Tier that can purge its own expired rows.
type DurableTier interface {
	Tier
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func unavailable(tier, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s %s: %w: not configured", tier, op, sentinel.ErrUnavailable)
	}
	return fmt.Errorf("%s %s: %w: %w", tier, op, sentinel.ErrUnavailable, cause)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// decodeResult parses a stored result and rejects entries whose status is not
// one of the known values, so a stale or foreign payload reads as a tier error.
func decodeResult(tier string, npi domain.NPI, raw []byte) (models.ValidationResult, error) {
	var result models.ValidationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.ValidationResult{}, fmt.Errorf("%s get: decode %s: %w", tier, npi, err)
	}
	if !result.Status.IsValid() {
		return models.ValidationResult{}, fmt.Errorf("%s get: decode %s: unknown status %q: %w", tier, npi, result.Status, sentinel.ErrInvalidState)
	}
	return result, nil
}
