// Package reconcile repairs contact linkage after the fact: it links module
// records created before resolution existed, merges duplicate contacts that
// independent resolution paths produced for the same household, and
// recomputes stale household keys. Every job is idempotent and safe to
// re-run; per-record failures are logged and skipped, never fatal.
package reconcile

import (
	"github.com/sells-group/agency-crm/internal/normalize"
	"github.com/sells-group/agency-crm/internal/records"
)

// ExactLinkSQL returns the backfill SQL for one module table: set contact_id
// on unlinked records whose name/zip fields produce an existing contact's
// household key exactly. Confidence is total, the key is the identity.
func ExactLinkSQL(t records.ModuleTable) string {
	key := normalize.HouseholdKeySQL("r."+t.LastCol, "r."+t.FirstCol, "r."+t.ZipCol)
	return `
UPDATE ` + t.Name + ` r
SET contact_id = c.id
FROM crm.contacts c
WHERE r.contact_id IS NULL
  AND r.` + t.LastCol + ` <> ''
  AND c.agency_id = r.agency_id
  AND c.household_key = ` + key
}

// FallbackLinkSQL returns the lower-confidence backfill SQL for one module
// table: match by normalized first+last name alone, ignoring zip, preferring
// the most recently updated contact when several share the name. This trades
// a small false-merge risk for much higher linkage coverage and only runs
// after exact matching is exhausted.
func FallbackLinkSQL(t records.ModuleTable) string {
	return `
UPDATE ` + t.Name + ` r
SET contact_id = c.id
FROM (
    SELECT DISTINCT ON (agency_id, ` + normalize.KeyNameSQL("last_name") + `, ` + normalize.KeyNameSQL("first_name") + `)
        id, agency_id,
        ` + normalize.KeyNameSQL("last_name") + ` AS last_key,
        ` + normalize.KeyNameSQL("first_name") + ` AS first_key
    FROM crm.contacts
    ORDER BY agency_id, ` + normalize.KeyNameSQL("last_name") + `, ` + normalize.KeyNameSQL("first_name") + `, updated_at DESC
) c
WHERE r.contact_id IS NULL
  AND r.` + t.LastCol + ` <> ''
  AND c.agency_id = r.agency_id
  AND c.last_key = ` + normalize.KeyNameSQL("r."+t.LastCol) + `
  AND COALESCE(NULLIF(c.first_key, ''), '` + normalize.UnknownFirst + `') =
      COALESCE(NULLIF(` + normalize.KeyNameSQL("r."+t.FirstCol) + `, ''), '` + normalize.UnknownFirst + `')`
}

// RenormalizeKeysSQL returns the SQL that recomputes household keys that no
// longer reflect the contact's current name/zip (after a merge or late zip
// edit). Rows whose recomputed key would collide with another contact are
// left alone; they are merge candidates for the next merge pass, and
// rewriting them here would just trip the unique constraint.
func RenormalizeKeysSQL() string {
	key := normalize.HouseholdKeySQL("c.last_name", "c.first_name", "c.zip_code")
	dupKey := normalize.HouseholdKeySQL("d.last_name", "d.first_name", "d.zip_code")
	return `
UPDATE crm.contacts c
SET household_key = ` + key + `,
    updated_at = now()
WHERE c.household_key <> ` + key + `
  AND NOT EXISTS (
      SELECT 1 FROM crm.contacts d
      WHERE d.agency_id = c.agency_id
        AND d.id <> c.id
        AND (d.household_key = ` + key + ` OR ` + dupKey + ` = ` + key + `)
  )`
}
