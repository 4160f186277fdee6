package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

// DefaultConcurrency is the batch chunk size when none is configured.
const DefaultConcurrency = 2

type batchConfig struct {
	concurrency int
}

// BatchOption configures a single ValidateBatch call.
type BatchOption func(*batchConfig)

// WithConcurrency sets how many lookups run at once. Values below 1 fall back
// to the service default.
func WithConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n >= 1 {
			c.concurrency = n
		}
	}
}

// ValidateBatch validates ids in consecutive chunks. Lookups in a chunk run
// concurrently and the whole chunk settles before the next one starts.
// Results line up with ids, duplicates included. Per-item registry errors
// become invalid results, so the batch itself never fails. Once ctx is done
// the remaining items are reported invalid without being looked up, keeping
// the format reason for malformed ones.
func (s *Service) ValidateBatch(ctx context.Context, ids []string, opts ...BatchOption) models.BatchResult {
	cfg := batchConfig{concurrency: s.concurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	n := cfg.concurrency

	batchID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "npi.ValidateBatch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", len(ids)),
		attribute.Int("batch.concurrency", n),
	))
	defer span.End()

	results := make([]models.ValidationResult, len(ids))
	for start := 0; start < len(ids); start += n {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(ids); i++ {
				results[i] = s.unvisited(ids[i], err)
			}
			s.logger.WarnContext(ctx, "batch cancelled",
				"batch_id", batchID,
				"remaining", len(ids)-start,
				"error", err,
			)
			break
		}

		end := min(start+n, len(ids))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				result, err := s.Validate(ctx, ids[i])
				if err != nil {
					s.logger.WarnContext(ctx, "batch item failed",
						"batch_id", batchID,
						"index", i,
						"error", err,
					)
					result = s.batchFailure(ids[i], err)
				}
				results[i] = result
				return nil
			})
		}
		_ = g.Wait()
	}

	var summary models.Summary
	for _, r := range results {
		summary.Add(r.Status)
	}
	s.metrics.ObserveBatchSize(len(ids))
	s.logger.InfoContext(ctx, "batch validated",
		"batch_id", batchID,
		"total", summary.Total,
		"validated", summary.Validated,
		"invalid", summary.Invalid,
		"deactivated", summary.Deactivated,
		"organization", summary.Organization,
	)
	return models.BatchResult{Results: results, Summary: summary}
}

// unvisited reports an item skipped after cancellation. Malformed input still
// gets its format reason since that needs no lookup.
func (s *Service) unvisited(raw string, cause error) models.ValidationResult {
	if _, err := domain.CheckFormat(raw); err != nil {
		s.metrics.IncrementOutcome(string(models.StatusInvalid), sourceFormat)
		return s.formatFailure(raw, err)
	}
	return s.batchFailure(raw, cause)
}

func (s *Service) batchFailure(raw string, err error) models.ValidationResult {
	s.metrics.IncrementOutcome(string(models.StatusInvalid), sourceBatchError)
	return models.ValidationResult{
		NPI:         strings.TrimSpace(raw),
		Status:      models.StatusInvalid,
		Reason:      "Validation error: " + err.Error(),
		ValidatedAt: s.clock(),
	}
}
