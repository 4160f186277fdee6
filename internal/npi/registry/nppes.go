package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

const (
	// DefaultBaseURL is the public NPPES NPI Registry API.
	DefaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"
	// DefaultTimeout bounds a single registry lookup.
	DefaultTimeout = 10 * time.Second

	apiVersion   = "2.1"
	maxErrorBody = 512
)

// HTTPClient looks NPIs up in the NPPES registry over HTTP.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client (tests, custom transports).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithLogger sets the logger used for failed lookups.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient constructs an NPPES client. Empty baseURL and non-positive
// timeout fall back to DefaultBaseURL and DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &HTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Lookup fetches the registry record for npi. Returns (nil, nil) when the
// registry reports no match.
func (c *HTTPClient) Lookup(ctx context.Context, npi domain.NPI) (*models.ProviderRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lookupURL(npi), nil)
	if err != nil {
		return nil, NewAPIError(0, "build registry request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		classified := c.classifyTransportError(ctx, err)
		c.logger.WarnContext(ctx, "registry lookup failed",
			"npi", npi.String(),
			"kind", classified.Kind,
			"error", err,
		)
		return nil, classified
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitError("", parseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewAPIError(resp.StatusCode, fmt.Sprintf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload nppesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return nil, c.classifyTransportError(ctx, err)
		}
		return nil, NewAPIError(resp.StatusCode, "decode registry response", err)
	}
	if len(payload.Errors) > 0 {
		return nil, NewAPIError(resp.StatusCode, payload.Errors[0].Description, nil)
	}
	for _, result := range payload.Results {
		if string(result.Number) == npi.String() {
			return result.toRecord(), nil
		}
	}
	return nil, nil
}

func (c *HTTPClient) lookupURL(npi domain.NPI) string {
	q := url.Values{}
	q.Set("version", apiVersion)
	q.Set("number", npi.String())
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	return c.baseURL + sep + q.Encode()
}

func (c *HTTPClient) classifyTransportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(c.timeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(c.timeout, err)
	}
	return NewAPIError(0, "registry request failed", err)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Wire format of the NPPES v2.1 API. Only the fields the validator uses are decoded.

type nppesResponse struct {
	ResultCount int           `json:"result_count"`
	Results     []nppesResult `json:"results"`
	Errors      []nppesError  `json:"Errors"`
}

type nppesError struct {
	Description string `json:"description"`
	Field       string `json:"field"`
	Number      string `json:"number"`
}

type nppesResult struct {
	Number          flexString      `json:"number"`
	EnumerationType string          `json:"enumeration_type"`
	Basic           nppesBasic      `json:"basic"`
	Taxonomies      []nppesTaxonomy `json:"taxonomies"`
	Addresses       []nppesAddress  `json:"addresses"`
}

type nppesBasic struct {
	FirstName              string `json:"first_name"`
	LastName               string `json:"last_name"`
	MiddleName             string `json:"middle_name"`
	Credential             string `json:"credential"`
	OrganizationName       string `json:"organization_name"`
	Status                 string `json:"status"`
	DeactivationDate       string `json:"deactivation_date"`
	DeactivationReasonCode string `json:"deactivation_reason_code"`
	ReactivationDate       string `json:"reactivation_date"`
}

type nppesTaxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	State   string `json:"state"`
	License string `json:"license"`
	Primary bool   `json:"primary"`
}

type nppesAddress struct {
	Purpose     string `json:"address_purpose"`
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Telephone   string `json:"telephone_number"`
}

// flexString accepts both JSON strings and numbers; NPPES has emitted the NPI
// number in both forms across API versions.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (r nppesResult) toRecord() *models.ProviderRecord {
	record := &models.ProviderRecord{
		NPI:                    string(r.Number),
		EnumerationType:        models.EnumerationIndividual,
		Status:                 models.ProviderActive,
		FirstName:              r.Basic.FirstName,
		MiddleName:             r.Basic.MiddleName,
		LastName:               r.Basic.LastName,
		Credential:             r.Basic.Credential,
		OrganizationName:       r.Basic.OrganizationName,
		DeactivationDate:       r.Basic.DeactivationDate,
		DeactivationReasonCode: r.Basic.DeactivationReasonCode,
		ReactivationDate:       r.Basic.ReactivationDate,
	}
	if r.EnumerationType == "NPI-2" {
		record.EnumerationType = models.EnumerationOrganization
	}
	if isDeactivated(r.Basic) {
		record.Status = models.ProviderDeactivated
	}
	for _, t := range r.Taxonomies {
		record.Taxonomies = append(record.Taxonomies, models.Taxonomy{
			Code:        t.Code,
			Description: t.Desc,
			State:       t.State,
			License:     t.License,
			Primary:     t.Primary,
		})
	}
	for _, a := range r.Addresses {
		record.Addresses = append(record.Addresses, models.Address{
			Purpose:     models.AddressPurpose(strings.ToUpper(a.Purpose)),
			Line1:       a.Address1,
			Line2:       a.Address2,
			City:        a.City,
			State:       a.State,
			PostalCode:  a.PostalCode,
			CountryCode: a.CountryCode,
			Phone:       a.Telephone,
		})
	}
	return record
}

// isDeactivated applies the NPPES status rules: an explicit status flag wins;
// without one, a deactivation date counts unless a later reactivation date exists.
func isDeactivated(b nppesBasic) bool {
	switch strings.ToUpper(b.Status) {
	case "D":
		return true
	case "A":
		return false
	}
	if b.DeactivationDate == "" {
		return false
	}
	if b.ReactivationDate == "" {
		return true
	}
	deactivated, okD := parseRegistryDate(b.DeactivationDate)
	reactivated, okR := parseRegistryDate(b.ReactivationDate)
	if !okD || !okR {
		return false
	}
	return reactivated.Before(deactivated)
}

func parseRegistryDate(v string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
