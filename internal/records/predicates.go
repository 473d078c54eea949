package records

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/db"
)

// Module status values the core's predicates depend on. The statuses are
// owned and transitioned by each module; the core only reads them.
const (
	LeadStatusQuoted = "quoted"
	LeadStatusSold   = "sold"

	RenewalStatusUncontacted = "uncontacted"
	RenewalStatusPending     = "pending"
	RenewalStatusRenewed     = "renewed"

	CancelStatusOpen       = "open"
	CancelStatusInProgress = "in_progress"
	CancelStatusSaved      = "saved"

	WinbackStatusActive = "active"
	WinbackStatusWon    = "won"
)

// Snapshot holds the per-module boolean predicates for one contact, the
// classifier's only input. Each flag is an existence check against that
// module's own table; the core never needs the module's internal schema.
type Snapshot struct {
	HasActiveWinback   bool
	HasSale            bool
	HasRenewalSuccess  bool
	HasSavedCancel     bool
	HasWonWinback      bool
	HasOpenCancelAudit bool
	HasOpenRenewal     bool
	HasOpenQuote       bool
}

// IsCustomer reports whether any module shows a completed positive outcome:
// a sale, a successful renewal, a saved cancellation, or a won win-back.
func (s Snapshot) IsCustomer() bool {
	return s.HasSale || s.HasRenewalSuccess || s.HasSavedCancel || s.HasWonWinback
}

// snapshotSQL gathers every module predicate in a single round trip.
const snapshotSQL = `
SELECT
    EXISTS (SELECT 1 FROM crm.winback_records      WHERE agency_id = $1 AND contact_id = $2 AND status = 'active'),
    EXISTS (SELECT 1 FROM crm.sale_records         WHERE agency_id = $1 AND contact_id = $2),
    EXISTS (SELECT 1 FROM crm.renewal_records      WHERE agency_id = $1 AND contact_id = $2 AND status = 'renewed'),
    EXISTS (SELECT 1 FROM crm.cancel_audit_records WHERE agency_id = $1 AND contact_id = $2 AND status = 'saved'),
    EXISTS (SELECT 1 FROM crm.winback_records      WHERE agency_id = $1 AND contact_id = $2 AND status = 'won'),
    EXISTS (SELECT 1 FROM crm.cancel_audit_records WHERE agency_id = $1 AND contact_id = $2 AND status IN ('open', 'in_progress')),
    EXISTS (SELECT 1 FROM crm.renewal_records      WHERE agency_id = $1 AND contact_id = $2 AND status IN ('uncontacted', 'pending')),
    EXISTS (SELECT 1 FROM crm.lead_records         WHERE agency_id = $1 AND contact_id = $2 AND status = 'quoted'
                AND NOT EXISTS (SELECT 1 FROM crm.sale_records s WHERE s.agency_id = $1 AND s.contact_id = $2))`

// PostgresStore reads module predicates using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Snapshot computes all module predicates for one contact.
func (s *PostgresStore) Snapshot(ctx context.Context, agencyID, contactID uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx, snapshotSQL, agencyID, contactID).Scan(
		&snap.HasActiveWinback,
		&snap.HasSale,
		&snap.HasRenewalSuccess,
		&snap.HasSavedCancel,
		&snap.HasWonWinback,
		&snap.HasOpenCancelAudit,
		&snap.HasOpenRenewal,
		&snap.HasOpenQuote,
	)
	if err != nil {
		return Snapshot{}, eris.Wrapf(err, "records: snapshot for contact %s", contactID)
	}
	return snap, nil
}
