// Package domain holds the pure NPI primitives: the identifier value type and
// its format/check-digit rules. Nothing here performs I/O or reads the clock.
package domain

import (
	"errors"
	"strings"
)

// NPILength is the number of digits in a National Provider Identifier.
const NPILength = 10

// luhnPrefix is the ISO 7812 issuer prefix (card issuer 80, health applications 840)
// prepended to the NPI before the check digit is computed.
const luhnPrefix = "80840"

var (
	// ErrEmpty indicates the input was blank after trimming.
	ErrEmpty = errors.New("NPI is empty")
	// ErrLength indicates the input was not exactly ten ASCII digits.
	ErrLength = errors.New("NPI must be exactly 10 digits")
	// ErrCheckDigit indicates the last digit does not match the Luhn check digit.
	ErrCheckDigit = errors.New("NPI failed check-digit (Luhn) validation")
)

// NPI is a format-validated National Provider Identifier.
//
// Invariants:
//   - Exactly 10 ASCII digits
//   - Last digit is the Luhn check digit computed over "80840" + the first 9 digits
type NPI struct {
	value string
}

// CheckFormat trims raw and validates it as an NPI. The returned error is one of
// ErrEmpty, ErrLength or ErrCheckDigit.
func CheckFormat(raw string) (NPI, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return NPI{}, ErrEmpty
	}
	if !isDigits(value, NPILength) {
		return NPI{}, ErrLength
	}
	want, err := CheckDigit(value[:NPILength-1])
	if err != nil {
		return NPI{}, err
	}
	if int(value[NPILength-1]-'0') != want {
		return NPI{}, ErrCheckDigit
	}
	return NPI{value: value}, nil
}

// MustNPI creates an NPI, panicking if invalid.
// Use only in tests or when the value is known to be valid.
func MustNPI(value string) NPI {
	npi, err := CheckFormat(value)
	if err != nil {
		panic(err)
	}
	return npi
}

// CheckDigit computes the Luhn check digit for the nine leading digits of an NPI.
func CheckDigit(base string) (int, error) {
	if !isDigits(base, NPILength-1) {
		return 0, ErrLength
	}
	digits := luhnPrefix + base
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10, nil
}

// String returns the ten-digit identifier.
func (n NPI) String() string {
	return n.value
}

// IsZero returns true if this is the zero value (uninitialized).
func (n NPI) IsZero() bool {
	return n.value == ""
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
