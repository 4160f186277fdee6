package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
	"npi-gateway/pkg/platform/sentinel"
)

func TestRedisStoreNotConfigured(t *testing.T) {
	ctx := context.Background()
	npi := domain.MustNPI("1234567893")
	store := NewRedisStore(nil)

	assert.False(t, store.Available())

	_, ok, err := store.Get(ctx, npi)
	assert.False(t, ok)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.ErrorIs(t, store.Set(ctx, npi, models.ValidationResult{}, time.Hour), sentinel.ErrUnavailable)
	assert.ErrorIs(t, store.Delete(ctx, npi), sentinel.ErrUnavailable)
}

func TestRedisStoreUnreachable(t *testing.T) {
	ctx := context.Background()
	npi := domain.MustNPI("1234567893")
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	_, ok, err := store.Get(ctx, npi)
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.ErrorIs(t, store.Set(ctx, npi, models.ValidationResult{NPI: npi.String()}, time.Hour), sentinel.ErrUnavailable)
}

func TestRedisStoreKeyAndTTLValidation(t *testing.T) {
	npi := domain.MustNPI("1234567893")
	assert.Equal(t, "npi:validation:1234567893", NewRedisStore(nil).key(npi))
	assert.Equal(t, "test:1234567893", NewRedisStore(nil, WithRedisPrefix("test:")).key(npi))

	err := NewRedisStore(nil).Set(context.Background(), npi, models.ValidationResult{}, 0)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}
