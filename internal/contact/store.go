package contact

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/db"
)

// Store defines persistence operations for canonical contacts. The resolver
// is the only ingestion-path writer; the reconciler additionally merges and
// re-keys rows through its own batch SQL.
type Store interface {
	FindIDsByPhone(ctx context.Context, agencyID uuid.UUID, digits string) ([]uuid.UUID, error)
	MergeInto(ctx context.Context, id uuid.UUID, f Fields) error
	UpsertByKey(ctx context.Context, agencyID uuid.UUID, householdKey string, f Fields) (uuid.UUID, error)
	GetByID(ctx context.Context, agencyID, id uuid.UUID) (*Contact, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindIDsByPhone returns the ids of every contact in the agency whose phone
// set contains the given 10-digit number. More than one hit means the number
// is shared (landline, household) and is useless as a match signal.
func (s *PostgresStore) FindIDsByPhone(ctx context.Context, agencyID uuid.UUID, digits string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM crm.contacts WHERE agency_id = $1 AND $2 = ANY(phones)`,
		agencyID, digits,
	)
	if err != nil {
		return nil, eris.Wrap(err, "contact: find by phone")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "contact: scan phone match")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "contact: iterate phone matches")
	}
	return ids, nil
}

// MergeInto unions normalized fields into an existing contact: empty target
// fields are filled, non-empty ones are left alone, and a new phone/email is
// appended only when absent. Last name and household key are never touched
// here; only the reconciler may re-key a contact.
func (s *PostgresStore) MergeInto(ctx context.Context, id uuid.UUID, f Fields) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crm.contacts SET
    first_name     = CASE WHEN first_name = '' THEN $2 ELSE first_name END,
    zip_code       = CASE WHEN zip_code = '' THEN $3 ELSE zip_code END,
    street_address = CASE WHEN street_address = '' THEN $4 ELSE street_address END,
    city           = CASE WHEN city = '' THEN $5 ELSE city END,
    state          = CASE WHEN state = '' THEN $6 ELSE state END,
    phones         = CASE WHEN $7 = '' OR $7 = ANY(phones) THEN phones ELSE array_append(phones, $7) END,
    emails         = CASE WHEN $8 = '' OR $8 = ANY(emails) THEN emails ELSE array_append(emails, $8) END,
    updated_at     = now()
WHERE id = $1`,
		id, f.FirstName, f.Zip, f.StreetAddress, f.City, f.State, f.Phone, f.Email,
	)
	if err != nil {
		return eris.Wrapf(err, "contact: merge into %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("contact: merge into %s: no such contact", id)
	}
	return nil
}

// UpsertByKey inserts a contact under its (agency_id, household_key) or, if
// a concurrent or earlier resolution already created that household, merges
// the new fields into the existing row. The ON CONFLICT arm makes the whole
// find-or-create race-safe without an application-level lock.
func (s *PostgresStore) UpsertByKey(ctx context.Context, agencyID uuid.UUID, householdKey string, f Fields) (uuid.UUID, error) {
	phones := []string{}
	if f.Phone != "" {
		phones = append(phones, f.Phone)
	}
	emails := []string{}
	if f.Email != "" {
		emails = append(emails, f.Email)
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
INSERT INTO crm.contacts
    (id, agency_id, household_key, first_name, last_name, zip_code,
     phones, emails, street_address, city, state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (agency_id, household_key) DO UPDATE SET
    first_name     = CASE WHEN crm.contacts.first_name = '' THEN EXCLUDED.first_name ELSE crm.contacts.first_name END,
    zip_code       = CASE WHEN crm.contacts.zip_code = '' THEN EXCLUDED.zip_code ELSE crm.contacts.zip_code END,
    street_address = CASE WHEN crm.contacts.street_address = '' THEN EXCLUDED.street_address ELSE crm.contacts.street_address END,
    city           = CASE WHEN crm.contacts.city = '' THEN EXCLUDED.city ELSE crm.contacts.city END,
    state          = CASE WHEN crm.contacts.state = '' THEN EXCLUDED.state ELSE crm.contacts.state END,
    phones         = CASE WHEN crm.contacts.phones @> EXCLUDED.phones THEN crm.contacts.phones ELSE crm.contacts.phones || EXCLUDED.phones END,
    emails         = CASE WHEN crm.contacts.emails @> EXCLUDED.emails THEN crm.contacts.emails ELSE crm.contacts.emails || EXCLUDED.emails END,
    updated_at     = now()
RETURNING id`,
		uuid.New(), agencyID, householdKey, f.FirstName, f.LastName, f.Zip,
		phones, emails, f.StreetAddress, f.City, f.State,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "contact: upsert key %s", householdKey)
	}
	return id, nil
}

// GetByID fetches a contact scoped to its agency.
func (s *PostgresStore) GetByID(ctx context.Context, agencyID, id uuid.UUID) (*Contact, error) {
	var c Contact
	err := s.pool.QueryRow(ctx, `
SELECT id, agency_id, household_key, first_name, last_name, zip_code,
       phones, emails, street_address, city, state, created_at, updated_at
FROM crm.contacts
WHERE agency_id = $1 AND id = $2`,
		agencyID, id,
	).Scan(
		&c.ID, &c.AgencyID, &c.HouseholdKey, &c.FirstName, &c.LastName, &c.ZipCode,
		&c.Phones, &c.Emails, &c.StreetAddress, &c.City, &c.State, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "contact: get %s", id)
	}
	return &c, nil
}
