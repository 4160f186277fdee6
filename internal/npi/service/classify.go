package service

import (
	"fmt"
	"strings"
	"time"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

const (
	reasonNotFound    = "NPI not found in registry"
	reasonDeactivated = "NPI has been deactivated"
	unknownName       = "unknown"
)

// Classify turns a registry answer into a ValidationResult. A nil record
// means the registry has no entry for npi.
func Classify(npi domain.NPI, record *models.ProviderRecord, now time.Time) models.ValidationResult {
	result := models.ValidationResult{
		NPI:         npi.String(),
		ValidatedAt: now,
	}
	if record == nil {
		result.Status = models.StatusInvalid
		result.Reason = reasonNotFound
		return result
	}

	result.Provider = record
	switch {
	case record.Status == models.ProviderDeactivated:
		result.Status = models.StatusDeactivated
		result.Reason = deactivationReason(record)
	case record.EnumerationType == models.EnumerationOrganization:
		result.Status = models.StatusOrganization
		result.Reason = "Organization provider: " + orDefault(strings.TrimSpace(record.OrganizationName), unknownName)
	default:
		result.Status = models.StatusValidated
		result.Reason = individualReason(record)
	}
	return result
}

func deactivationReason(record *models.ProviderRecord) string {
	date := strings.TrimSpace(record.DeactivationDate)
	code := strings.TrimSpace(record.DeactivationReasonCode)
	switch {
	case date != "" && code != "":
		return fmt.Sprintf("NPI deactivated on %s (reason: %s)", date, code)
	case date != "":
		return "NPI deactivated on " + date
	}
	return reasonDeactivated
}

func individualReason(record *models.ProviderRecord) string {
	reason := "Active individual provider: " + orDefault(joinName(record.FirstName, record.LastName), unknownName)
	if tax := record.PrimaryTaxonomy(); tax != nil && strings.TrimSpace(tax.Description) != "" {
		reason += " (" + strings.TrimSpace(tax.Description) + ")"
	}
	return reason
}

// joinName joins the non-empty parts with single spaces.
func joinName(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
