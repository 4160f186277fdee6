// Package service validates NPIs against the registry through the cache
// hierarchy, one at a time or in bounded-concurrency batches.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"npi-gateway/internal/npi/cache"
	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/events"
	"npi-gateway/internal/npi/metrics"
	"npi-gateway/internal/npi/models"
	"npi-gateway/internal/npi/registry"
)

const tracerName = "npi-gateway/internal/npi/service"

// Outcome sources recorded on the outcomes metric.
const (
	sourceFormat     = "format"
	sourceCache      = "cache"
	sourceRegistry   = "registry"
	sourceBatchError = "batch_error"
)

// Service is the validation orchestrator.
type Service struct {
	registry    registry.Client
	cache       *cache.Manager
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets where fresh results are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock sets the clock stamped on results.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithDefaultConcurrency sets the batch chunk size used when a call does not
// pass WithConcurrency. Values below 1 are ignored.
func WithDefaultConcurrency(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.concurrency = n
		}
	}
}

// NewService wires the orchestrator. A nil manager gets a memory-only cache.
func NewService(client registry.Client, manager *cache.Manager, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, errors.New("registry client is required")
	}
	if manager == nil {
		manager = cache.NewManager(nil)
	}
	s := &Service{
		registry:    client,
		cache:       manager,
		publisher:   events.NoopPublisher{},
		logger:      slog.New(slog.DiscardHandler),
		tracer:      otel.Tracer(tracerName),
		clock:       time.Now,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Validate checks raw's format, then answers from cache or the registry.
// Format failures come back as invalid results, not errors. Registry errors
// are returned as-is and nothing is cached for them.
func (s *Service) Validate(ctx context.Context, raw string) (models.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "npi.Validate")
	defer span.End()

	npi, err := domain.CheckFormat(raw)
	if err != nil {
		result := s.formatFailure(raw, err)
		s.finish(span, result, sourceFormat)
		return result, nil
	}
	span.SetAttributes(attribute.String("npi", npi.String()))

	if cached, ok := s.cache.Get(ctx, npi); ok {
		s.finish(span, cached, sourceCache)
		return cached, nil
	}

	record, err := s.lookup(ctx, npi)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "registry lookup failed",
			"npi", npi.String(),
			"kind", string(registry.KindOf(err)),
			"retryable", registry.IsRetryable(err),
			"error", err,
		)
		return models.ValidationResult{}, err
	}

	result := Classify(npi, record, s.clock())
	s.cache.Set(ctx, npi, result)
	s.publisher.Publish(ctx, events.NewValidationEvent(result))
	s.finish(span, result, sourceRegistry)
	s.logger.DebugContext(ctx, "npi validated",
		"npi", npi.String(),
		"status", string(result.Status),
	)
	return result, nil
}

// Invalidate drops raw from every cache tier. Only a malformed NPI is an error.
func (s *Service) Invalidate(ctx context.Context, raw string) error {
	npi, err := domain.CheckFormat(raw)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, npi)
	s.logger.InfoContext(ctx, "npi cache invalidated", "npi", npi.String())
	return nil
}

// CleanupExpired purges expired durable-tier rows and returns how many went.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.cache.CleanupExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "expired cache cleanup failed", "error", err)
		return 0, err
	}
	s.logger.InfoContext(ctx, "expired cache rows deleted", "deleted", n)
	return n, nil
}

// CacheSize returns the number of in-process cache entries.
func (s *Service) CacheSize() int {
	return s.cache.Size()
}

// ClearCache empties the in-process cache. Shared tiers are untouched.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

func (s *Service) lookup(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error) {
	ctx, span := s.tracer.Start(ctx, "npi.registry.Lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("npi", npi.String())),
	)
	defer span.End()

	start := time.Now()
	record, err := s.registry.Lookup(ctx, npi)
	outcome := "found"
	switch {
	case err != nil:
		outcome = string(registry.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	case record == nil:
		outcome = "not_found"
	}
	s.metrics.ObserveRegistryLatency(outcome, time.Since(start))
	return record, err
}

func (s *Service) formatFailure(raw string, err error) models.ValidationResult {
	return models.ValidationResult{
		NPI:         strings.TrimSpace(raw),
		Status:      models.StatusInvalid,
		Reason:      err.Error(),
		ValidatedAt: s.clock(),
	}
}

func (s *Service) finish(span trace.Span, result models.ValidationResult, source string) {
	span.SetAttributes(
		attribute.String("npi.status", string(result.Status)),
		attribute.Bool("npi.served_from_cache", result.ServedFromCache),
	)
	s.metrics.IncrementOutcome(string(result.Status), source)
}
