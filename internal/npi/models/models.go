package models

import "time"

// CacheTTL is how long a validation result stays valid in every cache tier.
const CacheTTL = 24 * time.Hour

// Status is the outcome of validating an NPI.
type Status string

const (
	StatusValidated    Status = "validated"
	StatusInvalid      Status = "invalid"
	StatusDeactivated  Status = "deactivated"
	StatusOrganization Status = "organization"
)

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusValidated, StatusInvalid, StatusDeactivated, StatusOrganization:
		return true
	}
	return false
}

// ValidationResult is the unit of value produced by the validator and stored in
// the cache tiers. Once built it is never modified; invalidation deletes it.
//
// ServedFromCache is computed at read time. Tiers always persist it as false
// and it plays no part in keys or expiry.
type ValidationResult struct {
	NPI             string          `json:"npi"`
	Status          Status          `json:"status"`
	Reason          string          `json:"reason"`
	Provider        *ProviderRecord `json:"provider,omitempty"`
	ValidatedAt     time.Time       `json:"validated_at"`
	ServedFromCache bool            `json:"served_from_cache"`
}

// Cached returns a copy of r marked as served from a cache tier.
func (r ValidationResult) Cached() ValidationResult {
	r.ServedFromCache = true
	return r
}

// Fresh returns a copy of r marked as freshly computed.
func (r ValidationResult) Fresh() ValidationResult {
	r.ServedFromCache = false
	return r
}

// CacheEntry wraps a result held in process memory with its absolute expiry.
type CacheEntry struct {
	Result    ValidationResult
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Summary tallies a batch by status.
type Summary struct {
	Total        int `json:"total"`
	Validated    int `json:"validated"`
	Invalid      int `json:"invalid"`
	Deactivated  int `json:"deactivated"`
	Organization int `json:"organization"`
}

// Add counts one result.
func (s *Summary) Add(status Status) {
	s.Total++
	switch status {
	case StatusValidated:
		s.Validated++
	case StatusInvalid:
		s.Invalid++
	case StatusDeactivated:
		s.Deactivated++
	case StatusOrganization:
		s.Organization++
	}
}

// BatchResult holds one result per input, in input order, plus a summary.
type BatchResult struct {
	Results []ValidationResult `json:"results"`
	Summary Summary            `json:"summary"`
}
