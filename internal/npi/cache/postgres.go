package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lib/pq"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

// PostgresSchema creates the durable cache table. Applied at startup when
// DATABASE_BOOTSTRAP_SCHEMA is set and by the integration tests.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS npi_validation_cache (
	npi        TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS npi_validation_cache_expires_at_idx ON npi_validation_cache (expires_at);
`

const defaultEvictTimeout = 5 * time.Second

// PostgresStore is the durable tier. Expiry is an explicit expires_at column
// compared on read; expired rows seen on read are deleted in the background
// and the rest are removed by DeleteExpired.
type PostgresStore struct {
	db           *sql.DB
	clock        Clock
	logger       *slog.Logger
	evictTimeout time.Duration
	evictions    sync.WaitGroup
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPostgresLogger sets the logger used by background evictions.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPostgresStore constructs the durable tier. A nil db yields a store that
// reports sentinel.ErrUnavailable on every call.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:           db,
		clock:        time.Now,
		logger:       slog.New(slog.DiscardHandler),
		evictTimeout: defaultEvictTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Name returns the tier label.
func (s *PostgresStore) Name() string { return TierPostgres }

// Available reports whether a database handle was configured.
func (s *PostgresStore) Available() bool { return s != nil && s.db != nil }

// Bootstrap applies PostgresSchema.
func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	if !s.Available() {
		return unavailable(TierPostgres, "bootstrap", nil)
	}
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return s.classify("bootstrap", err)
	}
	return nil
}

// Get returns the stored result for npi unless its expires_at has passed.
func (s *PostgresStore) Get(ctx context.Context, npi domain.NPI) (models.ValidationResult, bool, error) {
	if !s.Available() {
		return models.ValidationResult{}, false, unavailable(TierPostgres, "get", nil)
	}
	var (
		raw       []byte
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT result, expires_at FROM npi_validation_cache WHERE npi = $1`,
		npi.String(),
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ValidationResult{}, false, nil
	}
	if err != nil {
		return models.ValidationResult{}, false, s.classify("get", err)
	}
	if !s.clock().Before(expiresAt) {
		s.evictAsync(npi, expiresAt)
		return models.ValidationResult{}, false, nil
	}
	result, err := decodeResult(TierPostgres, npi, raw)
	if err != nil {
		return models.ValidationResult{}, false, err
	}
	return result, true, nil
}

// Set upserts result with expires_at = now + ttl.
func (s *PostgresStore) Set(ctx context.Context, npi domain.NPI, result models.ValidationResult, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if !s.Available() {
		return unavailable(TierPostgres, "set", nil)
	}
	payload, err := json.Marshal(result.Fresh())
	if err != nil {
		return fmt.Errorf("postgres set: encode %s: %w", npi, err)
	}
	now := s.clock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO npi_validation_cache (npi, result, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (npi) DO UPDATE SET
			result = EXCLUDED.result,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, npi.String(), payload, now.Add(ttl), now)
	if err != nil {
		return s.classify("set", err)
	}
	return nil
}

// Delete removes npi. Deleting an absent row is not an error.
func (s *PostgresStore) Delete(ctx context.Context, npi domain.NPI) error {
	if !s.Available() {
		return unavailable(TierPostgres, "delete", nil)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM npi_validation_cache WHERE npi = $1`, npi.String()); err != nil {
		return s.classify("delete", err)
	}
	return nil
}

// DeleteExpired removes every row whose expires_at is before now and returns
// how many were removed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if !s.Available() {
		return 0, unavailable(TierPostgres, "cleanup", nil)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM npi_validation_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, s.classify("cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres cleanup: rows affected: %w", err)
	}
	return n, nil
}

// Wait blocks until background evictions started by Get have finished.
func (s *PostgresStore) Wait() {
	s.evictions.Wait()
}

// evictAsync deletes an expired row without holding up the read. The
// expires_at guard leaves the row alone if a concurrent Set refreshed it.
func (s *PostgresStore) evictAsync(npi domain.NPI, expiresAt time.Time) {
	s.evictions.Add(1)
	go func() {
		defer s.evictions.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.evictTimeout)
		defer cancel()
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM npi_validation_cache WHERE npi = $1 AND expires_at <= $2`,
			npi.String(), expiresAt,
		)
		if err != nil {
			s.logger.WarnContext(ctx, "evict expired cache row failed",
				"tier", TierPostgres,
				"npi", npi.String(),
				"error", err,
			)
		}
	}()
}

// classify marks connection-class failures as unavailable so they read as
// "tier down" rather than a query bug.
func (s *PostgresStore) classify(op string, err error) error {
	if isConnectionError(err) {
		return unavailable(TierPostgres, op, err)
	}
	return fmt.Errorf("%s %s: %w", TierPostgres, op, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "57", "53":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
