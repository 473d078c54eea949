// Package query is the read side of the contact core: stage-filtered,
// searchable, paginated contact lists with derived columns computed at query
// time. Nothing here writes; the derived stage is never cached.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/stage"
)

// SortKey selects the list ordering.
type SortKey string

// SortDir selects ascending or descending order. Nulls sort last either way.
type SortDir string

const (
	SortName         SortKey = "name"
	SortLastActivity SortKey = "last_activity"
	SortStage        SortKey = "stage"
	SortStaff        SortKey = "staff"

	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ErrBadOptions is returned for list options the caller can correct: an
// unknown stage filter, sort key, or sort direction.
var ErrBadOptions = eris.New("query: invalid list options")

// Options filters and pages a contact list. Cursor, when set, takes
// precedence over Offset: offset pagination over a set whose derived stages
// shift under concurrent writes produces visible duplicates and gaps, so
// clients walking pages should carry the cursor forward.
type Options struct {
	Stage   stage.Stage // optional filter; empty = all stages
	Search  string
	SortKey SortKey
	SortDir SortDir
	Limit   int
	Offset  int
	Cursor  string
}

// ContactRow is one line of a contact list: the contact summary plus the
// derived columns the UI renders.
type ContactRow struct {
	ID                uuid.UUID   `json:"id"`
	FirstName         string      `json:"first_name"`
	LastName          string      `json:"last_name"`
	ZipCode           string      `json:"zip_code"`
	Phones            []string    `json:"phones"`
	Emails            []string    `json:"emails"`
	CurrentStage      stage.Stage `json:"current_stage"`
	LastActivityAt    *time.Time  `json:"last_activity_at"`
	LastActivityType  string      `json:"last_activity_type,omitempty"`
	AssignedStaffName string      `json:"assigned_staff_name,omitempty"`
}

// Page is one page of results plus the filtered set's total size and the
// cursor for the next page ("" when this page is the last).
type Page struct {
	Rows       []ContactRow `json:"rows"`
	Total      int          `json:"total"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// Lister runs contact list queries.
type Lister struct {
	pool db.Pool
}

// NewLister creates a Lister.
func NewLister(pool db.Pool) *Lister {
	return &Lister{pool: pool}
}

// sortMeta maps a sort key to the filtered-CTE column carrying it and the
// cast that turns the cursor's text value back into the column type.
type sortMeta struct {
	col  string
	cast string
}

func sortMetaFor(key SortKey) (sortMeta, error) {
	switch key {
	case SortName, "":
		return sortMeta{col: "sort_name"}, nil
	case SortLastActivity:
		return sortMeta{col: "last_activity_at", cast: "::timestamptz"}, nil
	case SortStage:
		return sortMeta{col: "sort_stage", cast: "::int"}, nil
	case SortStaff:
		return sortMeta{col: "staff_name"}, nil
	default:
		return sortMeta{}, eris.Wrapf(ErrBadOptions, "unknown sort key %q", key)
	}
}

// stageOrdinalSQL maps the derived stage text to its priority ordinal so
// sorting by stage follows triage priority, not the alphabet.
func stageOrdinalSQL(col string) string {
	var b strings.Builder
	b.WriteString("CASE " + col)
	for i, s := range stage.All {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, i)
	}
	b.WriteString(" ELSE 99 END")
	return b.String()
}

// List returns one page of contacts for the agency. Total reflects the
// filtered set size at query time, never a cached value.
func (l *Lister) List(ctx context.Context, agencyID uuid.UUID, opts Options) (*Page, error) {
	if opts.Stage != "" && !stage.Valid(opts.Stage) {
		return nil, eris.Wrapf(ErrBadOptions, "unknown stage filter %q", opts.Stage)
	}
	meta, err := sortMetaFor(opts.SortKey)
	if err != nil {
		return nil, err
	}
	dir := opts.SortDir
	if dir == "" {
		dir = Asc
	}
	if dir != Asc && dir != Desc {
		return nil, eris.Wrapf(ErrBadOptions, "unknown sort direction %q", dir)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	args := []any{agencyID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	// Search: every whitespace token must substring-match the first or last
	// name, OR the raw string substring-matches any phone or email.
	searchSQL := ""
	if s := strings.TrimSpace(opts.Search); s != "" {
		var tokenClauses []string
		for _, tok := range strings.Fields(s) {
			ph := arg("%" + tok + "%")
			tokenClauses = append(tokenClauses,
				fmt.Sprintf("(c.first_name ILIKE %s OR c.last_name ILIKE %s)", ph, ph))
		}
		raw := arg("%" + s + "%")
		searchSQL = fmt.Sprintf(`
      AND ((%s)
           OR EXISTS (SELECT 1 FROM unnest(c.phones) ph WHERE ph LIKE %s)
           OR EXISTS (SELECT 1 FROM unnest(c.emails) em WHERE em ILIKE %s))`,
			strings.Join(tokenClauses, " AND "), raw, raw)
	}

	stageFilterSQL := ""
	if opts.Stage != "" {
		stageFilterSQL = "\n    WHERE current_stage = " + arg(string(opts.Stage))
	}

	// The count query shares the filter args but none of the pagination
	// args, so snapshot them before the keyset predicate is built.
	countArgs := append([]any(nil), args...)

	// Keyset predicate, never part of the count: the cursor trims the page
	// position, not the filtered set.
	keysetSQL := ""
	if opts.Cursor != "" {
		cur, err := decodeCursor(opts.Cursor, opts.SortKey, dir)
		if err != nil {
			return nil, err
		}
		idPh := arg(cur.ID)
		if cur.Value == nil {
			keysetSQL = fmt.Sprintf("\nWHERE f.%s IS NULL AND f.id > %s", meta.col, idPh)
		} else {
			valPh := arg(*cur.Value) + meta.cast
			cmp := ">"
			if dir == Desc {
				cmp = "<"
			}
			keysetSQL = fmt.Sprintf(
				"\nWHERE (f.%[1]s %[2]s %[3]s OR (f.%[1]s = %[3]s AND f.id > %[4]s) OR f.%[1]s IS NULL)",
				meta.col, cmp, valPh, idPh)
		}
	}

	orderSQL := fmt.Sprintf("f.%s %s NULLS LAST, f.id ASC", meta.col, strings.ToUpper(string(dir)))

	pageSQL := "\nLIMIT " + arg(limit)
	if opts.Cursor == "" && opts.Offset > 0 {
		pageSQL += " OFFSET " + arg(opts.Offset)
	}

	baseSQL := `
WITH scored AS (
    SELECT c.id, c.first_name, c.last_name, c.zip_code, c.phones, c.emails,
           (` + stage.CaseSQL("c") + `) AS current_stage,
           (UPPER(c.last_name) || ' ' || UPPER(c.first_name)) AS sort_name,
           act.last_activity_at,
           act.last_activity_type,
           st.display_name AS staff_name
    FROM crm.contacts c
    LEFT JOIN LATERAL (
        SELECT al.occurred_at AS last_activity_at, al.activity_type AS last_activity_type
        FROM crm.activity_log al
        WHERE al.agency_id = c.agency_id AND al.contact_id = c.id
        ORDER BY al.occurred_at DESC
        LIMIT 1
    ) act ON true
    LEFT JOIN crm.staff st ON st.id = c.assigned_staff_id
    WHERE c.agency_id = $1` + searchSQL + `
),
filtered AS (
    SELECT *, ` + stageOrdinalSQL("current_stage") + ` AS sort_stage
    FROM scored` + stageFilterSQL + `
)`

	sql := baseSQL + `
SELECT f.id, f.first_name, f.last_name, f.zip_code, f.phones, f.emails,
       f.current_stage, f.last_activity_at, f.last_activity_type, f.staff_name,
       f.` + meta.col + `::text AS sort_value
FROM filtered f` + keysetSQL + `
ORDER BY ` + orderSQL + pageSQL

	page := &Page{Rows: []ContactRow{}}

	// The total is its own scan of the filtered set: an empty page (offset
	// past the end, cursor at the last row) must still report the true count.
	countSQL := baseSQL + `
SELECT COUNT(*) FROM filtered`
	if err := l.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&page.Total); err != nil {
		return nil, eris.Wrap(err, "query: count contacts")
	}

	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query: list contacts")
	}
	defer rows.Close()

	var lastSortValue *string
	for rows.Next() {
		var r ContactRow
		var actType, staffName, sortValue *string
		if err := rows.Scan(
			&r.ID, &r.FirstName, &r.LastName, &r.ZipCode, &r.Phones, &r.Emails,
			&r.CurrentStage, &r.LastActivityAt, &actType, &staffName,
			&sortValue,
		); err != nil {
			return nil, eris.Wrap(err, "query: scan contact row")
		}
		if actType != nil {
			r.LastActivityType = *actType
		}
		if staffName != nil {
			r.AssignedStaffName = *staffName
		}
		lastSortValue = sortValue
		page.Rows = append(page.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "query: iterate contact rows")
	}

	// A full page may have more behind it; hand back the keyset token.
	if len(page.Rows) == limit {
		last := page.Rows[len(page.Rows)-1]
		page.NextCursor = encodeCursor(cursor{
			Key:   string(opts.SortKey),
			Dir:   string(dir),
			Value: lastSortValue,
			ID:    last.ID,
		})
	}
	return page, nil
}
