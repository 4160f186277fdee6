package handler

import (
	"fmt"

	"npi-gateway/pkg/platform/httputil"
)

// MaxConcurrency bounds the per-request batch concurrency.
const MaxConcurrency = 10

// BatchRequest is the body of POST /v1/npi/batch. A zero Concurrency uses
// the service default.
type BatchRequest struct {
	NPIs        []string `json:"npis"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// Validate checks the request against maxItems.
func (r BatchRequest) Validate(maxItems int) error {
	switch {
	case len(r.NPIs) == 0:
		return httputil.BadRequest("npis must not be empty")
	case len(r.NPIs) > maxItems:
		return httputil.BadRequest(fmt.Sprintf("npis must contain at most %d items", maxItems))
	case r.Concurrency < 0 || r.Concurrency > MaxConcurrency:
		return httputil.BadRequest(fmt.Sprintf("concurrency must be between 0 and %d", MaxConcurrency))
	}
	return nil
}
