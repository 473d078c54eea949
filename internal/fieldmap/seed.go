package fieldmap

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/agency-crm/internal/db"
)

// Seed is a declarative field mapping, the format operators check into the
// agency's onboarding repo and load with the CLI.
type Seed struct {
	Template string            `yaml:"template"`
	Version  int               `yaml:"version"`
	Fields   map[string]string `yaml:"fields"` // logical field -> column header
}

// ParseSeed decodes and validates a YAML mapping file. Every mapped field
// must be a known logical field; a typo here would silently drop a column
// from every future import.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "fieldmap: parse seed file")
	}
	if s.Template == "" {
		return nil, eris.New("fieldmap: seed file needs a template name")
	}
	if s.Version <= 0 {
		s.Version = 1
	}
	if len(s.Fields) == 0 {
		return nil, eris.New("fieldmap: seed file maps no fields")
	}

	known := make(map[string]bool, len(LogicalFields))
	for _, f := range LogicalFields {
		known[f] = true
	}
	for logical := range s.Fields {
		if !known[logical] {
			return nil, eris.Errorf("fieldmap: unknown logical field %q", logical)
		}
	}
	return &s, nil
}

// SaveSeed writes the seed's rows for one agency, replacing that template
// version if it was loaded before.
func (s *PostgresStore) SaveSeed(ctx context.Context, agencyID uuid.UUID, seed *Seed) error {
	rows := make([][]any, 0, len(seed.Fields))
	for logical, physical := range seed.Fields {
		rows = append(rows, []any{agencyID, seed.Template, seed.Version, logical, physical})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "crm.field_mappings",
		Columns:      []string{"agency_id", "template", "version", "logical_field", "physical_key"},
		ConflictKeys: []string{"agency_id", "template", "version", "logical_field"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "fieldmap: save template %s", seed.Template)
	}
	return nil
}
