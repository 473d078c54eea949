package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/records"
)

// MergePair identifies a duplicate contact merge: the source carries a
// placeholder zip (no real zip known), the target is the same household with
// a real zip. The source loses.
type MergePair struct {
	AgencyID uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
}

// findPlaceholderPairsSQL locates same-agency contacts with identical
// normalized names where exactly the source side has a placeholder zip.
// Both '' and the literal '00000' count as placeholders: sources exporting
// "zip unknown" as 00000 produce the same household key as a no-zip row.
// When several real-zip twins exist the most recently updated one wins as
// target.
const findPlaceholderPairsSQL = `
SELECT DISTINCT ON (p.id) p.agency_id, p.id, t.id
FROM crm.contacts p
JOIN crm.contacts t
    ON t.agency_id = p.agency_id
   AND t.id <> p.id
   AND UPPER(t.last_name) = UPPER(p.last_name)
   AND COALESCE(NULLIF(UPPER(t.first_name), ''), 'UNKNOWN') =
       COALESCE(NULLIF(UPPER(p.first_name), ''), 'UNKNOWN')
WHERE p.zip_code IN ('', '00000')
  AND t.zip_code NOT IN ('', '00000')
ORDER BY p.id, t.updated_at DESC`

// mergeFieldsSQL unions the source contact into the target: empty target
// fields take the source value, phone/email sets take the union. Runs before
// FK repointing so a partial merge still leaves the target enriched.
const mergeFieldsSQL = `
UPDATE crm.contacts t SET
    first_name     = CASE WHEN t.first_name = '' THEN s.first_name ELSE t.first_name END,
    zip_code       = CASE WHEN t.zip_code = '' THEN s.zip_code ELSE t.zip_code END,
    street_address = CASE WHEN t.street_address = '' THEN s.street_address ELSE t.street_address END,
    city           = CASE WHEN t.city = '' THEN s.city ELSE t.city END,
    state          = CASE WHEN t.state = '' THEN s.state ELSE t.state END,
    phones         = t.phones || (SELECT COALESCE(array_agg(p), '{}') FROM unnest(s.phones) AS p WHERE NOT p = ANY(t.phones)),
    emails         = t.emails || (SELECT COALESCE(array_agg(e), '{}') FROM unnest(s.emails) AS e WHERE NOT e = ANY(t.emails)),
    updated_at     = now()
FROM crm.contacts s
WHERE t.id = $2 AND s.id = $1 AND s.agency_id = t.agency_id`

// Merger collapses duplicate contacts into their canonical row.
type Merger struct {
	pool db.Pool
	log  *zap.Logger
}

// NewMerger creates a Merger.
func NewMerger(pool db.Pool) *Merger {
	return &Merger{
		pool: pool,
		log:  zap.L().With(zap.String("component", "household_merger")),
	}
}

// FindPlaceholderPairs returns every placeholder-zip duplicate alongside its
// real-zip target, across all agencies.
func (m *Merger) FindPlaceholderPairs(ctx context.Context) ([]MergePair, error) {
	rows, err := m.pool.Query(ctx, findPlaceholderPairsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: find placeholder pairs")
	}
	defer rows.Close()

	var pairs []MergePair
	for rows.Next() {
		var p MergePair
		if err := rows.Scan(&p.AgencyID, &p.SourceID, &p.TargetID); err != nil {
			return nil, eris.Wrap(err, "reconcile: scan merge pair")
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "reconcile: iterate merge pairs")
	}
	return pairs, nil
}

// Merge folds the source contact into the target: fields are coalesced,
// every enumerated foreign key is repointed, then the source row is deleted.
// A repoint that would violate a uniqueness constraint on its table is
// skipped and logged; the rest of the merge proceeds. Running Merge twice
// for the same pair is a no-op the second time.
func (m *Merger) Merge(ctx context.Context, p MergePair) error {
	log := m.log.With(
		zap.String("agency_id", p.AgencyID.String()),
		zap.String("source_id", p.SourceID.String()),
		zap.String("target_id", p.TargetID.String()),
	)

	if _, err := m.pool.Exec(ctx, mergeFieldsSQL, p.SourceID, p.TargetID); err != nil {
		return eris.Wrapf(err, "reconcile: merge fields %s -> %s", p.SourceID, p.TargetID)
	}

	// Repoint every FK explicitly. No cascading delete may ever remove
	// module records, so each referencing table is enumerated.
	conflicts := 0
	for _, fk := range records.ContactFKs {
		sql := `UPDATE ` + fk.Table + ` SET ` + fk.Column + ` = $2 WHERE ` + fk.Column + ` = $1`
		if _, err := m.pool.Exec(ctx, sql, p.SourceID, p.TargetID); err != nil {
			if isUniqueViolation(err) {
				conflicts++
				log.Warn("skipping FK repoint: uniqueness conflict on target table",
					zap.String("table", fk.Table),
					zap.String("error", err.Error()),
				)
				continue
			}
			return eris.Wrapf(err, "reconcile: repoint %s.%s", fk.Table, fk.Column)
		}
	}

	if conflicts > 0 {
		// Rows still reference the source; deleting it would break them.
		// Leave the source for a later run once the conflicts are resolved.
		log.Warn("merge left source contact in place", zap.Int("fk_conflicts", conflicts))
		return nil
	}

	if _, err := m.pool.Exec(ctx, `DELETE FROM crm.contacts WHERE id = $1`, p.SourceID); err != nil {
		return eris.Wrapf(err, "reconcile: delete merged source %s", p.SourceID)
	}
	log.Info("merged duplicate contact")
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
