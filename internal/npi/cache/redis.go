package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

// DefaultRedisPrefix namespaces validation results in a shared Redis.
const DefaultRedisPrefix = "npi:validation:"

// RedisStore is the shared tier. Values are JSON-encoded ValidationResults
// stored with SET ... EX so Redis expires them on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore constructs the shared tier. A nil client yields a store that
// reports sentinel.ErrUnavailable on every call.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Name returns the tier label.
func (s *RedisStore) Name() string { return TierRedis }

// Available reports whether a client was configured.
func (s *RedisStore) Available() bool { return s != nil && s.client != nil }

// Get fetches and decodes the result stored for npi.
func (s *RedisStore) Get(ctx context.Context, npi domain.NPI) (models.ValidationResult, bool, error) {
	if !s.Available() {
		return models.ValidationResult{}, false, unavailable(TierRedis, "get", nil)
	}
	raw, err := s.client.Get(ctx, s.key(npi)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ValidationResult{}, false, nil
	}
	if err != nil {
		return models.ValidationResult{}, false, unavailable(TierRedis, "get", err)
	}
	result, err := decodeResult(TierRedis, npi, raw)
	if err != nil {
		return models.ValidationResult{}, false, err
	}
	return result, true, nil
}

// Set stores result under npi with a server-side TTL.
func (s *RedisStore) Set(ctx context.Context, npi domain.NPI, result models.ValidationResult, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if !s.Available() {
		return unavailable(TierRedis, "set", nil)
	}
	payload, err := json.Marshal(result.Fresh())
	if err != nil {
		return fmt.Errorf("redis set: encode %s: %w", npi, err)
	}
	if err := s.client.Set(ctx, s.key(npi), payload, ttl).Err(); err != nil {
		return unavailable(TierRedis, "set", err)
	}
	return nil
}

// Delete removes npi. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, npi domain.NPI) error {
	if !s.Available() {
		return unavailable(TierRedis, "delete", nil)
	}
	if err := s.client.Del(ctx, s.key(npi)).Err(); err != nil {
		return unavailable(TierRedis, "delete", err)
	}
	return nil
}

func (s *RedisStore) key(npi domain.NPI) string {
	return s.prefix + npi.String()
}
