package reconcile

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agency-crm/internal/records"
)

func TestReconciler_Run_AllPasses(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	// Concurrency 1 keeps the exec order deterministic for the mock.
	r := New(mock, Config{FallbackLink: true, LinkConcurrency: 1})

	for range records.ModuleTables {
		mock.ExpectExec(`UPDATE crm\.\w+ r\s+SET contact_id = c\.id\s+FROM crm\.contacts c`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))
		mock.ExpectExec(`UPDATE crm\.\w+ r\s+SET contact_id = c\.id\s+FROM \(`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectQuery(`SELECT DISTINCT ON \(p\.id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"agency_id", "source_id", "target_id"}))
	mock.ExpectExec(`UPDATE crm\.contacts c\s+SET household_key`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(15), sum.Linked)
	assert.Equal(t, int64(5), sum.FallbackLinked)
	assert.Zero(t, sum.MergesApplied)
	assert.Equal(t, int64(2), sum.Rekeyed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciler_Run_FallbackDisabled(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	r := New(mock, Config{FallbackLink: false, LinkConcurrency: 1})

	for range records.ModuleTables {
		mock.ExpectExec(`UPDATE crm\.\w+ r\s+SET contact_id = c\.id`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}
	mock.ExpectQuery(`SELECT DISTINCT ON \(p\.id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"agency_id", "source_id", "target_id"}))
	mock.ExpectExec(`UPDATE crm\.contacts c\s+SET household_key`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.FallbackLinked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciler_PassFailureDoesNotAbortBatch(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	r := New(mock, Config{LinkConcurrency: 1})

	// First table's pass fails; the remaining tables still run.
	mock.ExpectExec(`UPDATE crm\.\w+ r\s+SET contact_id = c\.id`).
		WillReturnError(assert.AnError)
	for range records.ModuleTables[1:] {
		mock.ExpectExec(`UPDATE crm\.\w+ r\s+SET contact_id = c\.id`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectQuery(`SELECT DISTINCT ON \(p\.id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"agency_id", "source_id", "target_id"}))
	mock.ExpectExec(`UPDATE crm\.contacts c\s+SET household_key`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
