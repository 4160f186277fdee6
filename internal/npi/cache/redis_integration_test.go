//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"npi-gateway/internal/npi/cache"
	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
	"npi-gateway/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
	npi   domain.NPI
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = cache.NewRedisStore(s.redis.Client)
	s.npi = domain.MustNPI("1234567893")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := models.ValidationResult{
		NPI:         s.npi.String(),
		Status:      models.StatusValidated,
		Reason:      "Active individual provider: John Doe (Internal Medicine)",
		ValidatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Provider: &models.ProviderRecord{
			NPI:             s.npi.String(),
			EnumerationType: models.EnumerationIndividual,
			Status:          models.ProviderActive,
			FirstName:       "John",
			LastName:        "Doe",
		},
	}

	s.Require().NoError(s.store.Set(ctx, s.npi, want, models.CacheTTL))

	got, ok, err := s.store.Get(ctx, s.npi)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(want.Reason, got.Reason)
	s.True(want.ValidatedAt.Equal(got.ValidatedAt))
	s.Require().NotNil(got.Provider)
	s.Equal("Doe", got.Provider.LastName)

	ttl, err := s.redis.Client.TTL(ctx, cache.DefaultRedisPrefix+s.npi.String()).Result()
	s.Require().NoError(err)
	s.InDelta(models.CacheTTL.Seconds(), ttl.Seconds(), 5)
}

func (s *RedisStoreSuite) TestMissAndDelete() {
	ctx := context.Background()

	_, ok, err := s.store.Get(ctx, s.npi)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Set(ctx, s.npi, models.ValidationResult{NPI: s.npi.String()}, time.Minute))
	s.Require().NoError(s.store.Delete(ctx, s.npi))
	s.Require().NoError(s.store.Delete(ctx, s.npi))

	_, ok, err = s.store.Get(ctx, s.npi)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestEntryExpires() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, s.npi, models.ValidationResult{NPI: s.npi.String()}, time.Second))

	s.Eventually(func() bool {
		_, ok, err := s.store.Get(ctx, s.npi)
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}
