package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"npi-gateway/internal/npi/cache"
	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/events"
	"npi-gateway/internal/npi/metrics"
	"npi-gateway/internal/npi/models"
	"npi-gateway/internal/npi/registry"
	"npi-gateway/internal/npi/registry/mocks"
)

const (
	johnDoeNPI = "1234567893"
	otherNPI   = "1245319599"
)

func johnDoe() *models.ProviderRecord {
	return &models.ProviderRecord{
		NPI:             johnDoeNPI,
		EnumerationType: models.EnumerationIndividual,
		Status:          models.ProviderActive,
		FirstName:       "John",
		LastName:        "Doe",
		Taxonomies: []models.Taxonomy{
			{Code: "207R00000X", Description: "Internal Medicine", Primary: true},
		},
	}
}

func acmeClinic() *models.ProviderRecord {
	return &models.ProviderRecord{
		NPI:              otherNPI,
		EnumerationType:  models.EnumerationOrganization,
		Status:           models.ProviderActive,
		OrganizationName: "Acme Clinic",
	}
}

// validNPI appends the Luhn check digit to a 9-digit base.
func validNPI(t *testing.T, base string) string {
	t.Helper()
	d, err := domain.CheckDigit(base)
	if err != nil {
		t.Fatalf("check digit for %s: %v", base, err)
	}
	return base + strconv.Itoa(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ValidationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.ValidationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// mapTier is a durable tier backed by a map.
type mapTier struct {
	mu      sync.Mutex
	entries map[string]models.ValidationResult
}

func newMapTier() *mapTier {
	return &mapTier{entries: make(map[string]models.ValidationResult)}
}

func (m *mapTier) Name() string { return cache.TierPostgres }

func (m *mapTier) Get(_ context.Context, npi domain.NPI) (models.ValidationResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[npi.String()]
	return r, ok, nil
}

func (m *mapTier) Set(_ context.Context, npi domain.NPI, r models.ValidationResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[npi.String()] = r
	return nil
}

func (m *mapTier) Delete(_ context.Context, npi domain.NPI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, npi.String())
	return nil
}

func (m *mapTier) DeleteExpired(context.Context, time.Time) (int64, error) { return 3, nil }

// =============================================================================
// Service Test Suite
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	registry  *mocks.MockClient
	durable   *mapTier
	publisher *recordingPublisher
	now       time.Time
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.registry = mocks.NewMockClient(s.ctrl)
	s.durable = newMapTier()
	s.publisher = &recordingPublisher{}
	s.now = time.Now().UTC()
	s.service = s.newService(s.registry)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(client registry.Client, opts ...Option) *Service {
	mx := metrics.NewWithRegisterer(prometheus.NewRegistry())
	manager := cache.NewManager(cache.NewMemoryStore(),
		cache.WithDurableTier(s.durable),
		cache.WithMetrics(mx),
	)
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(mx),
		WithPublisher(s.publisher),
		WithClock(func() time.Time { return s.now }),
	}, opts...)
	svc, err := NewService(client, manager, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) TestNewService() {
	s.Run("nil registry client returns error", func() {
		_, err := NewService(nil, nil)
		s.Error(err)
		s.Contains(err.Error(), "registry client is required")
	})

	s.Run("nil manager gets a memory cache", func() {
		svc, err := NewService(s.registry, nil)
		s.Require().NoError(err)
		s.Zero(svc.CacheSize())
		s.Equal(DefaultConcurrency, svc.concurrency)
	})
}

// =============================================================================
// Validate
// =============================================================================

func (s *ServiceSuite) TestValidateFormatFailures() {
	cases := []struct {
		input string
		want  string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"12345", "10 digits"},
		{"12345abcde", "10 digits"},
		{"1234567890", "check-digit"},
	}
	for _, tc := range cases {
		s.Run(strconv.Quote(tc.input), func() {
			for range 2 {
				got, err := s.service.Validate(s.ctx, tc.input)
				s.Require().NoError(err)
				s.Equal(models.StatusInvalid, got.Status)
				s.Contains(got.Reason, tc.want)
				s.False(got.ServedFromCache)
			}
			s.Zero(s.service.CacheSize(), "format failures are never cached")
		})
	}
}

func (s *ServiceSuite) TestValidateActiveIndividual() {
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(johnDoeNPI)).Return(johnDoe(), nil).Times(1)

	first, err := s.service.Validate(s.ctx, johnDoeNPI)
	s.Require().NoError(err)
	s.Equal(models.StatusValidated, first.Status)
	s.Equal("Active individual provider: John Doe (Internal Medicine)", first.Reason)
	s.False(first.ServedFromCache)
	s.Equal(s.now, first.ValidatedAt)
	s.Require().NotNil(first.Provider)

	second, err := s.service.Validate(s.ctx, "  "+johnDoeNPI+" ")
	s.Require().NoError(err)
	s.True(second.ServedFromCache)
	s.Equal(first.Reason, second.Reason)
	s.Equal(1, s.service.CacheSize())
	s.Equal(1, s.publisher.count(), "only registry results are published")
}

func (s *ServiceSuite) TestValidateNotFoundIsCached() {
	s.registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	got, err := s.service.Validate(s.ctx, johnDoeNPI)
	s.Require().NoError(err)
	s.Equal(models.StatusInvalid, got.Status)
	s.Equal("NPI not found in registry", got.Reason)
	s.Nil(got.Provider)

	again, err := s.service.Validate(s.ctx, johnDoeNPI)
	s.Require().NoError(err)
	s.True(again.ServedFromCache)
	s.Equal(got.Reason, again.Reason)
}

func (s *ServiceSuite) TestValidateRegistryErrorsPropagate() {
	cases := []struct {
		name      string
		err       error
		kind      registry.ErrorKind
		retryable bool
	}{
		{"rate limited", registry.NewRateLimitError("slow down", time.Second), registry.KindRateLimited, true},
		{"timeout", registry.NewTimeoutError(10*time.Second, context.DeadlineExceeded), registry.KindTimeout, true},
		{"server error", registry.NewAPIError(503, "unavailable", nil), registry.KindAPI, true},
		{"client error", registry.NewAPIError(400, "bad request", nil), registry.KindAPI, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, tc.err).Times(2)

			for range 2 {
				_, err := s.service.Validate(s.ctx, johnDoeNPI)
				s.Require().Error(err)
				s.Same(tc.err, err, "registry errors are returned unmodified")

				var re *registry.Error
				s.Require().True(errors.As(err, &re))
				s.Equal(tc.kind, re.Kind)
				s.Equal(tc.retryable, registry.IsRetryable(err))
			}
			s.Zero(s.service.CacheSize())
			s.Zero(s.publisher.count())
		})
	}
}

func (s *ServiceSuite) TestValidatePromotesDurableHit() {
	cached := Classify(domain.MustNPI(johnDoeNPI), johnDoe(), s.now)
	s.Require().NoError(s.durable.Set(s.ctx, domain.MustNPI(johnDoeNPI), cached, models.CacheTTL))

	got, err := s.service.Validate(s.ctx, johnDoeNPI)
	s.Require().NoError(err)
	s.True(got.ServedFromCache)
	s.Equal(1, s.service.CacheSize(), "durable hit lands in memory")
}

func (s *ServiceSuite) TestInvalidate() {
	s.Run("next validate goes back to the registry once", func() {
		s.registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(johnDoe(), nil).Times(2)

		_, err := s.service.Validate(s.ctx, johnDoeNPI)
		s.Require().NoError(err)
		s.Require().NoError(s.service.Invalidate(s.ctx, johnDoeNPI))
		s.Zero(s.service.CacheSize())

		got, err := s.service.Validate(s.ctx, johnDoeNPI)
		s.Require().NoError(err)
		s.False(got.ServedFromCache)

		got, err = s.service.Validate(s.ctx, johnDoeNPI)
		s.Require().NoError(err)
		s.True(got.ServedFromCache)
	})

	s.Run("uncached npi is fine", func() {
		s.NoError(s.service.Invalidate(s.ctx, otherNPI))
	})

	s.Run("malformed npi is rejected", func() {
		err := s.service.Invalidate(s.ctx, "12345")
		s.ErrorIs(err, domain.ErrLength)
	})
}

func (s *ServiceSuite) TestCacheMaintenance() {
	s.registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(acmeClinic(), nil).Times(1)
	_, err := s.service.Validate(s.ctx, otherNPI)
	s.Require().NoError(err)
	s.Equal(1, s.service.CacheSize())

	s.service.ClearCache()
	s.Zero(s.service.CacheSize())

	got, err := s.service.Validate(s.ctx, otherNPI)
	s.Require().NoError(err)
	s.True(got.ServedFromCache, "durable tier still answers after memory is cleared")
	s.Equal(models.StatusOrganization, got.Status)

	n, err := s.service.CleanupExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}

// =============================================================================
// ValidateBatch
// =============================================================================

func (s *ServiceSuite) TestValidateBatchMixedInput() {
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(johnDoeNPI)).Return(johnDoe(), nil).Times(1)

	got := s.service.ValidateBatch(s.ctx, []string{"bad", johnDoeNPI})

	s.Require().Len(got.Results, 2)
	s.Equal(models.Summary{Total: 2, Validated: 1, Invalid: 1}, got.Summary)
	s.Equal("bad", got.Results[0].NPI)
	s.Equal(models.StatusInvalid, got.Results[0].Status)
	s.Equal(models.StatusValidated, got.Results[1].Status)
}

func (s *ServiceSuite) TestValidateBatchPreservesOrder() {
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(johnDoeNPI)).Return(johnDoe(), nil).Times(1)
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(otherNPI)).Return(acmeClinic(), nil).Times(1)

	got := s.service.ValidateBatch(s.ctx, []string{johnDoeNPI, otherNPI, johnDoeNPI})

	s.Require().Len(got.Results, 3)
	s.Equal(johnDoeNPI, got.Results[0].NPI)
	s.Equal(otherNPI, got.Results[1].NPI)
	s.Equal(johnDoeNPI, got.Results[2].NPI)
	s.Equal(got.Results[0].Status, got.Results[2].Status)
	s.Equal(got.Results[0].Reason, got.Results[2].Reason)
	s.Equal(got.Results[0].Provider, got.Results[2].Provider)
	s.Equal(models.Summary{Total: 3, Validated: 2, Organization: 1}, got.Summary)
}

func (s *ServiceSuite) TestValidateBatchIsolatesFailures() {
	third := validNPI(s.T(), "100300012")
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(johnDoeNPI)).Return(johnDoe(), nil)
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(otherNPI)).
		Return(nil, registry.NewTimeoutError(10*time.Second, context.DeadlineExceeded))
	s.registry.EXPECT().Lookup(gomock.Any(), domain.MustNPI(third)).Return(acmeClinic(), nil)

	got := s.service.ValidateBatch(s.ctx, []string{johnDoeNPI, otherNPI, third})

	s.Require().Len(got.Results, 3)
	s.Equal(3, got.Summary.Total)
	s.Equal(models.StatusValidated, got.Results[0].Status)
	s.Equal(models.StatusInvalid, got.Results[1].Status)
	s.Contains(got.Results[1].Reason, "Validation error: ")
	s.Contains(got.Results[1].Reason, "timeout")
	s.Equal(models.StatusOrganization, got.Results[2].Status)
}

func (s *ServiceSuite) TestValidateBatchBoundsConcurrency() {
	ids := make([]string, 0, 7)
	for i := range 7 {
		ids = append(ids, validNPI(s.T(), "12345000"+strconv.Itoa(i)))
	}

	for _, tc := range []struct {
		name string
		opts []BatchOption
		max  int64
	}{
		{"default", nil, DefaultConcurrency},
		{"explicit", []BatchOption{WithConcurrency(3)}, 3},
		{"non-positive falls back", []BatchOption{WithConcurrency(0)}, DefaultConcurrency},
	} {
		s.Run(tc.name, func() {
			var inFlight, peak, calls atomic.Int64
			client := registry.ClientFunc(func(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error) {
				calls.Add(1)
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			})
			svc := s.newService(client)
			s.durable.entries = make(map[string]models.ValidationResult)

			got := svc.ValidateBatch(s.ctx, ids, tc.opts...)

			s.Len(got.Results, len(ids))
			s.Equal(int64(len(ids)), calls.Load())
			s.LessOrEqual(peak.Load(), tc.max)
		})
	}
}

func (s *ServiceSuite) TestValidateBatchCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	got := s.service.ValidateBatch(ctx, []string{johnDoeNPI, otherNPI, "bad"})

	s.Require().Len(got.Results, 3)
	s.Equal(models.Summary{Total: 3, Invalid: 3}, got.Summary)
	for _, r := range got.Results[:2] {
		s.Equal("Validation error: context canceled", r.Reason)
	}
	s.Equal("bad", got.Results[2].NPI)
	s.Equal(domain.ErrLength.Error(), got.Results[2].Reason)
}

func (s *ServiceSuite) TestValidateBatchCancelledKeepsFormatReasons() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	got := s.service.ValidateBatch(ctx, []string{"", "1234567890", "bad"})

	s.Require().Len(got.Results, 3)
	s.Equal(domain.ErrEmpty.Error(), got.Results[0].Reason)
	s.Equal(domain.ErrCheckDigit.Error(), got.Results[1].Reason)
	s.Equal(domain.ErrLength.Error(), got.Results[2].Reason)
	for _, r := range got.Results {
		s.Equal(models.StatusInvalid, r.Status)
		s.False(r.ServedFromCache)
	}
}

func (s *ServiceSuite) TestValidateBatchEmpty() {
	got := s.service.ValidateBatch(s.ctx, nil)
	s.NotNil(got.Results)
	s.Empty(got.Results)
	s.Equal(models.Summary{}, got.Summary)
}
