package records

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Scan(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	agency, contact := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WithArgs(agency, contact).
		WillReturnRows(pgxmock.NewRows([]string{"w", "s", "r", "c", "ww", "oc", "or", "oq"}).
			AddRow(false, true, false, false, false, false, true, false))

	s := NewPostgresStore(mock)
	snap, err := s.Snapshot(context.Background(), agency, contact)
	require.NoError(t, err)
	assert.True(t, snap.HasSale)
	assert.True(t, snap.HasOpenRenewal)
	assert.False(t, snap.HasActiveWinback)
	assert.True(t, snap.IsCustomer())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotSQL_CoversEveryModule(t *testing.T) {
	assert.Contains(t, snapshotSQL, "crm.winback_records")
	assert.Contains(t, snapshotSQL, "crm.sale_records")
	assert.Contains(t, snapshotSQL, "crm.renewal_records")
	assert.Contains(t, snapshotSQL, "crm.cancel_audit_records")
	assert.Contains(t, snapshotSQL, "crm.lead_records")
}

func TestIsCustomer(t *testing.T) {
	assert.False(t, Snapshot{}.IsCustomer())
	assert.True(t, Snapshot{HasSale: true}.IsCustomer())
	assert.True(t, Snapshot{HasRenewalSuccess: true}.IsCustomer())
	assert.True(t, Snapshot{HasSavedCancel: true}.IsCustomer())
	assert.True(t, Snapshot{HasWonWinback: true}.IsCustomer())
}

func TestContactFKs_CoverModuleTables(t *testing.T) {
	cols := make(map[string]bool, len(ContactFKs))
	for _, fk := range ContactFKs {
		cols[fk.Table] = true
	}
	for _, mt := range ModuleTables {
		assert.True(t, cols[mt.Name], "module table %s missing from ContactFKs", mt.Name)
	}
}
