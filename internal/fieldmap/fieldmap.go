// Package fieldmap translates upload columns into logical contact fields.
// Agencies rename spreadsheet headers constantly; the mapping table holds a
// versioned header-to-field dictionary per upload template so ingestion
// never hard-codes fallback chains for drifting column names.
package fieldmap

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/db"
)

// Logical field names the resolver and record ingestion understand.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldZip       = "zip_code"
	FieldPhone     = "phone"
	FieldEmail     = "email"
	FieldStreet    = "street_address"
	FieldCity      = "city"
	FieldState     = "state"
	FieldStatus    = "status"
)

// LogicalFields lists every field a mapping may target.
var LogicalFields = []string{
	FieldFirstName, FieldLastName, FieldZip, FieldPhone, FieldEmail,
	FieldStreet, FieldCity, FieldState, FieldStatus,
}

// Store loads field mappings.
type Store interface {
	// Mapping returns logical field -> physical column header for the
	// latest version of the named template. An empty map means the
	// template is unknown.
	Mapping(ctx context.Context, agencyID uuid.UUID, template string) (map[string]string, error)
}

// PostgresStore reads crm.field_mappings.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Mapping implements Store against the latest template version.
func (s *PostgresStore) Mapping(ctx context.Context, agencyID uuid.UUID, template string) (map[string]string, error) {
	const sql = `
		SELECT logical_field, physical_key
		FROM crm.field_mappings
		WHERE agency_id = $1 AND template = $2
		  AND version = (
			SELECT MAX(version) FROM crm.field_mappings
			WHERE agency_id = $1 AND template = $2
		  )`

	rows, err := s.pool.Query(ctx, sql, agencyID, template)
	if err != nil {
		return nil, eris.Wrapf(err, "fieldmap: load template %s", template)
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var logical, physical string
		if err := rows.Scan(&logical, &physical); err != nil {
			return nil, eris.Wrap(err, "fieldmap: scan mapping row")
		}
		mapping[logical] = physical
	}
	return mapping, rows.Err()
}

// Mapper binds a header row to logical fields using a template mapping.
type Mapper struct {
	// index maps logical field -> column position in the header row.
	index map[string]int
}

// NewMapper resolves the header row against the mapping. Headers are
// matched case-insensitively after trimming. Logical fields whose mapped
// header is absent from the file are simply unbound; callers decide which
// absences are fatal. When mapping has no entry for a logical field the
// field's own name is tried as the header, so a file with canonical
// headers needs no mapping rows at all.
func NewMapper(header []string, mapping map[string]string) *Mapper {
	position := make(map[string]int, len(header))
	for i, h := range header {
		position[canonHeader(h)] = i
	}

	index := make(map[string]int)
	for _, field := range LogicalFields {
		physical, ok := mapping[field]
		if !ok {
			physical = field
		}
		if i, ok := position[canonHeader(physical)]; ok {
			index[field] = i
		}
	}
	return &Mapper{index: index}
}

// Bound reports whether the logical field resolved to a column.
func (m *Mapper) Bound(field string) bool {
	_, ok := m.index[field]
	return ok
}

// Value returns the row's value for the logical field, or "" when the
// field is unbound or the row is short.
func (m *Mapper) Value(row []string, field string) string {
	i, ok := m.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func canonHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
