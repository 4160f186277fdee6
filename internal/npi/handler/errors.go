package handler

import (
	"errors"
	"net/http"

	"npi-gateway/internal/npi/registry"
	"npi-gateway/pkg/platform/httputil"
)

// translate maps service errors onto HTTP errors. Unknown errors pass
// through and render as 500.
func translate(err error) error {
	if isFormatError(err) {
		return httputil.BadRequest(err.Error())
	}
	var re *registry.Error
	if !errors.As(err, &re) {
		return err
	}
	switch re.Kind {
	case registry.KindRateLimited:
		return &httputil.APIError{
			Status:     http.StatusTooManyRequests,
			Code:       httputil.CodeRateLimited,
			Message:    "NPI registry rate limit exceeded",
			Retryable:  true,
			RetryAfter: re.RetryAfter,
			Err:        err,
		}
	case registry.KindTimeout:
		return &httputil.APIError{
			Status:    http.StatusGatewayTimeout,
			Code:      httputil.CodeTimeout,
			Message:   "NPI registry did not respond in time",
			Retryable: true,
			Err:       err,
		}
	}
	return &httputil.APIError{
		Status:    http.StatusBadGateway,
		Code:      httputil.CodeUpstream,
		Message:   "NPI registry request failed",
		Retryable: re.Retryable,
		Err:       err,
	}
}
