// Package authz enforces agency membership on every request. Identity
// arrives from the upstream gateway as headers; this package only answers
// whether that user may touch the requested agency's data.
package authz

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/db"
)

// ErrAccessDenied is returned when a user is not a member of the agency
// whose data they are addressing.
var ErrAccessDenied = eris.New("authz: access denied")

// Checker answers agency membership questions.
type Checker interface {
	Member(ctx context.Context, agencyID, userID uuid.UUID) (bool, error)
}

// PostgresChecker checks membership against crm.agency_members.
type PostgresChecker struct {
	pool db.Pool
}

// NewPostgresChecker returns a Checker backed by the given pool.
func NewPostgresChecker(pool db.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

// Member reports whether userID belongs to agencyID.
func (c *PostgresChecker) Member(ctx context.Context, agencyID, userID uuid.UUID) (bool, error) {
	const sql = `
		SELECT EXISTS (
			SELECT 1 FROM crm.agency_members
			WHERE agency_id = $1 AND user_id = $2
		)`

	var ok bool
	if err := c.pool.QueryRow(ctx, sql, agencyID, userID).Scan(&ok); err != nil {
		return false, eris.Wrap(err, "authz: membership lookup")
	}
	return ok, nil
}
