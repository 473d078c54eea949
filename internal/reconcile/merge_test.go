package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/records"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockMerger(t *testing.T) (*Merger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewMerger(mock), mock
}

func somePair() MergePair {
	return MergePair{AgencyID: uuid.New(), SourceID: uuid.New(), TargetID: uuid.New()}
}

func TestFindPlaceholderPairs(t *testing.T) {
	m, mock := newMockMerger(t)
	p := somePair()

	mock.ExpectQuery(`SELECT DISTINCT ON \(p\.id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"agency_id", "source_id", "target_id"}).
			AddRow(p.AgencyID, p.SourceID, p.TargetID))

	pairs, err := m.FindPlaceholderPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, p, pairs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPlaceholderPairsSQL_LiteralZeroZipIsPlaceholder(t *testing.T) {
	// A contact stored with zip "00000" keys exactly like a no-zip contact
	// and must be merged the same way: selectable as a source, never usable
	// as a real-zip target.
	assert.Contains(t, findPlaceholderPairsSQL, "p.zip_code IN ('', '00000')")
	assert.Contains(t, findPlaceholderPairsSQL, "t.zip_code NOT IN ('', '00000')")
}

func TestMerge_RepointsEveryFKThenDeletes(t *testing.T) {
	m, mock := newMockMerger(t)
	p := somePair()

	mock.ExpectExec(`UPDATE crm\.contacts t SET`).
		WithArgs(p.SourceID, p.TargetID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for range records.ContactFKs {
		mock.ExpectExec(`UPDATE crm\.\w+ SET contact_id = \$2 WHERE contact_id = \$1`).
			WithArgs(p.SourceID, p.TargetID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	mock.ExpectExec(`DELETE FROM crm\.contacts WHERE id = \$1`).
		WithArgs(p.SourceID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, m.Merge(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_UniqueViolationSkipsRepointAndKeepsSource(t *testing.T) {
	m, mock := newMockMerger(t)
	p := somePair()

	mock.ExpectExec(`UPDATE crm\.contacts t SET`).
		WithArgs(p.SourceID, p.TargetID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// First FK repoint hits a uniqueness constraint on the target table.
	mock.ExpectExec(`UPDATE crm\.\w+ SET contact_id`).
		WithArgs(p.SourceID, p.TargetID).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	for range records.ContactFKs[1:] {
		mock.ExpectExec(`UPDATE crm\.\w+ SET contact_id`).
			WithArgs(p.SourceID, p.TargetID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	// No DELETE: rows still reference the source.

	require.NoError(t, m.Merge(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_FieldMergeFailureIsFatalForThisPair(t *testing.T) {
	m, mock := newMockMerger(t)
	p := somePair()

	mock.ExpectExec(`UPDATE crm\.contacts t SET`).
		WithArgs(p.SourceID, p.TargetID).
		WillReturnError(assert.AnError)

	err := m.Merge(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge fields")
}

func TestMerge_Idempotent_NoRowsAnywhere(t *testing.T) {
	m, mock := newMockMerger(t)
	p := somePair()

	// Source already merged away: every statement affects zero rows and the
	// merge still completes without error.
	mock.ExpectExec(`UPDATE crm\.contacts t SET`).
		WithArgs(p.SourceID, p.TargetID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	for range records.ContactFKs {
		mock.ExpectExec(`UPDATE crm\.\w+ SET contact_id`).
			WithArgs(p.SourceID, p.TargetID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}
	mock.ExpectExec(`DELETE FROM crm\.contacts`).
		WithArgs(p.SourceID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, m.Merge(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(assert.AnError))
	assert.False(t, isUniqueViolation(nil))
}
