package normalize

import "strings"

// PlaceholderZip is the zip segment used in household keys when no zip code
// is known. Keys carrying it are merge candidates for the reconciler once a
// real-zip twin appears.
const PlaceholderZip = "00000"

// UnknownFirst is the first-name segment used when a record has no first name.
const UnknownFirst = "UNKNOWN"

// KeyName uppercases a name for household-key construction, collapsing
// whitespace the same way Name does so display casing never affects keys.
func KeyName(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// HouseholdKey builds the deterministic matching key for a household:
// UPPER(last) _ UPPER(first|UNKNOWN) _ zip|00000. Callers must not pass an
// empty last name; the resolver refuses such records before keying.
func HouseholdKey(lastName, firstName, zip string) string {
	last := KeyName(lastName)
	first := KeyName(firstName)
	if first == "" {
		first = UnknownFirst
	}
	z := Zip(zip)
	if z == "" {
		z = PlaceholderZip
	}
	return last + "_" + first + "_" + z
}

// KeyNameSQL returns a SQL expression mirroring KeyName for use in batch
// reconciliation passes, so Go-side and SQL-side keys never diverge.
func KeyNameSQL(col string) string {
	return `UPPER(TRIM(REGEXP_REPLACE(` + col + `, '\s+', ' ', 'g')))`
}

// ZipSQL returns a SQL expression mirroring Zip: the first five digits of
// the column, or '' when fewer than five are present. Module records store
// zips raw, so the key expressions must tolerate zip+4 and stray punctuation
// the same way the Go side does.
func ZipSQL(col string) string {
	digits := `REGEXP_REPLACE(` + col + `, '\D', '', 'g')`
	return `CASE WHEN LENGTH(` + digits + `) >= 5 THEN SUBSTRING(` + digits + ` FROM 1 FOR 5) ELSE '' END`
}

// HouseholdKeySQL returns a SQL expression mirroring HouseholdKey over the
// given last/first/zip columns.
func HouseholdKeySQL(lastCol, firstCol, zipCol string) string {
	return KeyNameSQL(lastCol) +
		` || '_' || COALESCE(NULLIF(` + KeyNameSQL(firstCol) + `, ''), '` + UnknownFirst + `')` +
		` || '_' || COALESCE(NULLIF(` + ZipSQL(zipCol) + `, ''), '` + PlaceholderZip + `')`
}
