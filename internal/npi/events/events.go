// Package events announces freshly computed validation results to downstream
// consumers. Publishing is fire-and-forget: a failed publish never affects the
// validation that produced the event.
package events

import (
	"context"
	"time"

	"npi-gateway/internal/npi/models"
)

// SourceRegistry marks an event whose result came from a registry lookup.
const SourceRegistry = "registry"

// ValidationEvent is the payload written for each fresh result.
type ValidationEvent struct {
	NPI         string        `json:"npi"`
	Status      models.Status `json:"status"`
	Reason      string        `json:"reason"`
	ValidatedAt time.Time     `json:"validated_at"`
	Source      string        `json:"source"`
}

// NewValidationEvent builds the event for a registry-sourced result.
func NewValidationEvent(result models.ValidationResult) ValidationEvent {
	return ValidationEvent{
		NPI:         result.NPI,
		Status:      result.Status,
		Reason:      result.Reason,
		ValidatedAt: result.ValidatedAt,
		Source:      SourceRegistry,
	}
}

// Publisher emits validation events. Implementations must not block the caller
// on delivery and must not return delivery failures.
type Publisher interface {
	Publish(ctx context.Context, event ValidationEvent)
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(context.Context, ValidationEvent) {}
