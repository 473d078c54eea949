package fieldmap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
	data := []byte(`
template: lead_vendor_a
version: 2
fields:
  last_name: Insured Last
  first_name: Insured First
  phone: Phone 1
`)
	seed, err := ParseSeed(data)
	require.NoError(t, err)
	assert.Equal(t, "lead_vendor_a", seed.Template)
	assert.Equal(t, 2, seed.Version)
	assert.Equal(t, "Insured Last", seed.Fields["last_name"])
}

func TestParseSeed_DefaultsVersion(t *testing.T) {
	seed, err := ParseSeed([]byte("template: t\nfields:\n  last_name: Last\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, seed.Version)
}

func TestParseSeed_RejectsUnknownField(t *testing.T) {
	_, err := ParseSeed([]byte("template: t\nfields:\n  surname: Last\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown logical field "surname"`)
}

func TestParseSeed_RejectsMissingTemplate(t *testing.T) {
	_, err := ParseSeed([]byte("fields:\n  last_name: Last\n"))
	assert.Error(t, err)
}

func TestParseSeed_RejectsEmptyFields(t *testing.T) {
	_, err := ParseSeed([]byte("template: t\n"))
	assert.Error(t, err)
}

func TestSaveSeed(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_crm_field_mappings"},
		[]string{"agency_id", "template", "version", "logical_field", "physical_key"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "crm"\."field_mappings"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = NewPostgresStore(mock).SaveSeed(context.Background(), uuid.New(), &Seed{
		Template: "t",
		Version:  1,
		Fields:   map[string]string{"last_name": "Last"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
