package models

// EnumerationType distinguishes individual providers (NPI-1) from organizations (NPI-2).
type EnumerationType string

const (
	EnumerationIndividual   EnumerationType = "individual"
	EnumerationOrganization EnumerationType = "organization"
)

// ProviderStatus is the registry's activity flag for an NPI.
type ProviderStatus string

const (
	ProviderActive      ProviderStatus = "active"
	ProviderDeactivated ProviderStatus = "deactivated"
)

// AddressPurpose distinguishes practice locations from mailing addresses.
type AddressPurpose string

const (
	AddressLocation AddressPurpose = "LOCATION"
	AddressMailing  AddressPurpose = "MAILING"
)

// ProviderRecord is the subset of an NPPES registry entry the validator consumes.
type ProviderRecord struct {
	NPI                    string          `json:"npi"`
	EnumerationType        EnumerationType `json:"enumeration_type"`
	Status                 ProviderStatus  `json:"status"`
	FirstName              string          `json:"first_name,omitempty"`
	MiddleName             string          `json:"middle_name,omitempty"`
	LastName               string          `json:"last_name,omitempty"`
	Credential             string          `json:"credential,omitempty"`
	OrganizationName       string          `json:"organization_name,omitempty"`
	DeactivationDate       string          `json:"deactivation_date,omitempty"`
	DeactivationReasonCode string          `json:"deactivation_reason_code,omitempty"`
	ReactivationDate       string          `json:"reactivation_date,omitempty"`
	Taxonomies             []Taxonomy      `json:"taxonomies,omitempty"`
	Addresses              []Address       `json:"addresses,omitempty"`
}

// Taxonomy is a provider specialty classification.
type Taxonomy struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	State       string `json:"state,omitempty"`
	License     string `json:"license,omitempty"`
	Primary     bool   `json:"primary"`
}

// Address is a practice location or mailing address.
type Address struct {
	Purpose     AddressPurpose `json:"purpose"`
	Line1       string         `json:"line1,omitempty"`
	Line2       string         `json:"line2,omitempty"`
	City        string         `json:"city,omitempty"`
	State       string         `json:"state,omitempty"`
	PostalCode  string         `json:"postal_code,omitempty"`
	CountryCode string         `json:"country_code,omitempty"`
	Phone       string         `json:"phone,omitempty"`
}

// PrimaryTaxonomy returns the taxonomy flagged primary, falling back to the
// first one listed. Returns nil when the record carries none.
func (p *ProviderRecord) PrimaryTaxonomy() *Taxonomy {
	if p == nil || len(p.Taxonomies) == 0 {
		return nil
	}
	for i := range p.Taxonomies {
		if p.Taxonomies[i].Primary {
			return &p.Taxonomies[i]
		}
	}
	return &p.Taxonomies[0]
}
