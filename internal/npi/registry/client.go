package registry

import (
	"context"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Client

// Client queries the authoritative provider registry.
//
// Lookup returns (nil, nil) when the registry has no record for npi. Failures
// are returned as *Error so callers can inspect Kind and Retryable.
type Client interface {
	Lookup(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error)
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error)

// Lookup calls f(ctx, npi).
func (f ClientFunc) Lookup(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error) {
	return f(ctx, npi)
}
