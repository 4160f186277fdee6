// Package handler exposes the validation service over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
	"npi-gateway/internal/npi/service"
	"npi-gateway/pkg/platform/httputil"
)

// DefaultMaxBatchItems caps the number of NPIs in one batch request.
const DefaultMaxBatchItems = 100

// Service is the subset of the validation service the handler calls.
type Service interface {
	Validate(ctx context.Context, raw string) (models.ValidationResult, error)
	ValidateBatch(ctx context.Context, ids []string, opts ...service.BatchOption) models.BatchResult
	Invalidate(ctx context.Context, raw string) error
	CleanupExpired(ctx context.Context) (int64, error)
	CacheSize() int
}

// Handler wires NPI endpoints to the validation service.
type Handler struct {
	service       Service
	logger        *slog.Logger
	maxBatchItems int
}

// New constructs a handler. maxBatchItems < 1 uses DefaultMaxBatchItems.
func New(svc Service, logger *slog.Logger, maxBatchItems int) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxBatchItems < 1 {
		maxBatchItems = DefaultMaxBatchItems
	}
	return &Handler{
		service:       svc,
		logger:        logger,
		maxBatchItems: maxBatchItems,
	}
}

// Register mounts the NPI endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/npi", func(r chi.Router) {
		r.Post("/batch", h.HandleValidateBatch)
		r.Post("/cache/cleanup", h.HandleCleanup)
		r.Get("/cache/stats", h.HandleCacheStats)
		r.Get("/{npi}", h.HandleValidate)
		r.Delete("/{npi}/cache", h.HandleInvalidate)
	})
}

// HandleValidate handles GET /v1/npi/{npi}. Malformed NPIs are a 200 with an
// invalid result; only registry failures are errors.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "npi")
	start := time.Now()

	result, err := h.service.Validate(ctx, raw)
	if err != nil {
		h.logger.ErrorContext(ctx, "npi validation failed", "npi", raw, "error", err)
		httputil.WriteError(w, translate(err))
		return
	}

	h.logger.InfoContext(ctx, "npi validated",
		"npi", result.NPI,
		"status", string(result.Status),
		"served_from_cache", result.ServedFromCache,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleValidateBatch handles POST /v1/npi/batch.
func (h *Handler) HandleValidateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(h.maxBatchItems); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result := h.service.ValidateBatch(ctx, req.NPIs, service.WithConcurrency(req.Concurrency))
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleInvalidate handles DELETE /v1/npi/{npi}/cache.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "npi")

	if err := h.service.Invalidate(ctx, raw); err != nil {
		httputil.WriteError(w, translate(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCleanup handles POST /v1/npi/cache/cleanup.
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.CleanupExpired(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "cache cleanup failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CleanupResponse{Deleted: n})
}

// HandleCacheStats handles GET /v1/npi/cache/stats.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, CacheStatsResponse{MemoryEntries: h.service.CacheSize()})
}

func isFormatError(err error) bool {
	return errors.Is(err, domain.ErrEmpty) || errors.Is(err, domain.ErrLength) || errors.Is(err, domain.ErrCheckDigit)
}
