// Package contact owns the canonical person/household record and the
// identity resolver that maps noisy ingestion fields onto it.
package contact

import (
	"time"

	"github.com/google/uuid"
)

// Contact is the canonical deduplicated person/household record for one
// agency tenant. Phones and emails are append-only sets: resolution adds
// values, it never removes or overwrites them.
type Contact struct {
	ID            uuid.UUID
	AgencyID      uuid.UUID
	FirstName     string
	LastName      string
	HouseholdKey  string
	ZipCode       string // 5 digits, or "" when unknown
	Phones        []string
	Emails        []string
	StreetAddress string
	City          string
	State         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Input carries the raw person fields a collaborator module hands to the
// resolver. Everything except AgencyID and LastName is optional.
type Input struct {
	AgencyID      uuid.UUID
	FirstName     string
	LastName      string
	Zip           string
	Phone         string
	Email         string
	StreetAddress string
	City          string
	State         string
}

// Fields is the normalized, mergeable projection of an Input. Empty strings
// mean "unknown"; merge operations only fill empty target fields.
type Fields struct {
	FirstName     string
	LastName      string
	Zip           string
	Phone         string // 10 digits or ""
	Email         string
	StreetAddress string
	City          string
	State         string
}
