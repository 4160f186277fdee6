package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/metrics"
	"npi-gateway/internal/npi/models"
	"npi-gateway/pkg/platform/sentinel"
)

const defaultWriteTimeout = 5 * time.Second

// Manager reads through memory → shared → durable and writes back to all three.
// Only the memory tier is required; a nil shared or durable tier is skipped.
type Manager struct {
	memory       *MemoryStore
	shared       Tier
	durable      DurableTier
	ttl          time.Duration
	writeTimeout time.Duration
	clock        Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSharedTier sets tier 2.
func WithSharedTier(t Tier) ManagerOption {
	return func(m *Manager) { m.shared = t }
}

// WithDurableTier sets tier 3.
func WithDurableTier(t DurableTier) ManagerOption {
	return func(m *Manager) { m.durable = t }
}

// WithLogger sets the logger for degraded tier operations.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mx *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock sets the clock used for promotion lifetimes and cleanup.
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithWriteTimeout bounds tier 2/3 writes and deletes, which run detached
// from the caller's cancellation.
func WithWriteTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// NewManager builds a Manager around memory. A nil memory store gets a fresh one.
func NewManager(memory *MemoryStore, opts ...ManagerOption) *Manager {
	if memory == nil {
		memory = NewMemoryStore()
	}
	m := &Manager{
		memory:       memory,
		ttl:          models.CacheTTL,
		writeTimeout: defaultWriteTimeout,
		clock:        time.Now,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Get consults the tiers in order. A shared-tier hit is promoted into memory;
// a durable-tier hit is promoted into memory only. Tier errors count as misses.
// Hits are returned with ServedFromCache set.
func (m *Manager) Get(ctx context.Context, npi domain.NPI) (models.ValidationResult, bool) {
	if result, ok, _ := m.memory.Get(ctx, npi); ok {
		m.metrics.RecordCacheLookup(TierMemory, "hit")
		return result.Cached(), true
	}
	m.metrics.RecordCacheLookup(TierMemory, "miss")

	for _, tier := range m.remoteTiers() {
		result, ok := m.lookup(ctx, tier, npi)
		if !ok {
			continue
		}
		m.promote(ctx, npi, result, tier.Name())
		return result.Cached(), true
	}
	return models.ValidationResult{}, false
}

// Set writes memory synchronously, then the shared and durable tiers
// concurrently. Remote failures are logged and swallowed.
func (m *Manager) Set(ctx context.Context, npi domain.NPI, result models.ValidationResult) {
	result = result.Fresh()
	if err := m.memory.Set(ctx, npi, result, m.ttl); err != nil {
		m.logger.ErrorContext(ctx, "memory cache write failed", "npi", npi.String(), "error", err)
	}

	ctx, cancel := m.detached(ctx)
	defer cancel()

	var g errgroup.Group
	for _, tier := range m.remoteTiers() {
		g.Go(func() error {
			if err := tier.Set(ctx, npi, result, m.ttl); err != nil {
				m.degraded(ctx, tier.Name(), "set", npi, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate deletes npi from every tier. Missing keys and unavailable tiers
// are tolerated.
func (m *Manager) Invalidate(ctx context.Context, npi domain.NPI) {
	_ = m.memory.Delete(ctx, npi)

	ctx, cancel := m.detached(ctx)
	defer cancel()

	var g errgroup.Group
	for _, tier := range m.remoteTiers() {
		g.Go(func() error {
			if err := tier.Delete(ctx, npi); err != nil {
				m.degraded(ctx, tier.Name(), "delete", npi, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// CleanupExpired purges expired rows from the durable tier. Returns 0 when no
// durable tier is configured.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	if !configured(m.durable) {
		return 0, nil
	}
	n, err := m.durable.DeleteExpired(ctx, m.clock())
	if err != nil {
		m.metrics.RecordTierError(m.durable.Name(), "cleanup")
		if errors.Is(err, sentinel.ErrUnavailable) {
			m.logger.WarnContext(ctx, "cache cleanup skipped", "tier", m.durable.Name(), "error", err)
			return 0, nil
		}
		return 0, err
	}
	m.metrics.AddExpiredRowsDeleted(n)
	return n, nil
}

// Size returns the number of memory-tier entries.
func (m *Manager) Size() int {
	return m.memory.Len()
}

// Clear empties the memory tier.
func (m *Manager) Clear() {
	m.memory.Clear()
}

func (m *Manager) lookup(ctx context.Context, tier Tier, npi domain.NPI) (models.ValidationResult, bool) {
	result, ok, err := tier.Get(ctx, npi)
	switch {
	case err != nil:
		m.metrics.RecordCacheLookup(tier.Name(), "unavailable")
		m.degraded(ctx, tier.Name(), "get", npi, err)
		return models.ValidationResult{}, false
	case !ok:
		m.metrics.RecordCacheLookup(tier.Name(), "miss")
		return models.ValidationResult{}, false
	}
	m.metrics.RecordCacheLookup(tier.Name(), "hit")
	return result, true
}

// promote copies a remote hit into memory for what is left of its lifetime,
// measured from when the result was produced.
func (m *Manager) promote(ctx context.Context, npi domain.NPI, result models.ValidationResult, from string) {
	ttl := m.ttl
	if !result.ValidatedAt.IsZero() {
		ttl = result.ValidatedAt.Add(m.ttl).Sub(m.clock())
	}
	if ttl <= 0 {
		return
	}
	if ttl > m.ttl {
		ttl = m.ttl
	}
	if err := m.memory.Set(ctx, npi, result, ttl); err != nil {
		m.logger.ErrorContext(ctx, "cache promotion failed", "npi", npi.String(), "from", from, "error", err)
		return
	}
	m.logger.DebugContext(ctx, "cache entry promoted", "npi", npi.String(), "from", from, "to", TierMemory)
}

// availability is implemented by tiers that can be constructed without a client.
type availability interface {
	Available() bool
}

// remoteTiers returns the configured shared and durable tiers, in read order.
func (m *Manager) remoteTiers() []Tier {
	tiers := make([]Tier, 0, 2)
	for _, t := range []Tier{m.shared, m.durable} {
		if configured(t) {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

func configured(t Tier) bool {
	if t == nil {
		return false
	}
	if a, ok := t.(availability); ok {
		return a.Available()
	}
	return true
}

// detached keeps request values but drops the caller's cancellation so a
// client disconnect does not abort write-back.
func (m *Manager) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.writeTimeout)
}

func (m *Manager) degraded(ctx context.Context, tier, op string, npi domain.NPI, err error) {
	m.metrics.RecordTierError(tier, op)
	m.logger.WarnContext(ctx, "cache tier degraded",
		"tier", tier,
		"op", op,
		"npi", npi.String(),
		"error", err,
	)
}
