// Package records is the core's read-only boundary onto the five business
// modules (lead/quote, sale, renewal, cancellation audit, win-back). The
// core never mutates a module's status fields; it only reads existence
// predicates, links contact ids, and repoints foreign keys during merges.
package records

// ModuleTable describes one module-owned table that carries a nullable
// contact_id foreign key plus the raw person columns its ingestion captured.
type ModuleTable struct {
	Name      string // schema-qualified table name
	FirstCol  string
	LastCol   string
	ZipCol    string
	StatusCol string
	// DefaultStatus is what ingestion stages when an upload carries no
	// status column. Matches the table's column default.
	DefaultStatus string
}

// ModuleTables enumerates every module table holding a contact_id column.
// The reconciler's backfill passes and the merge FK repointing both iterate
// this list; a module added without an entry here silently escapes
// reconciliation, so keep it exhaustive.
var ModuleTables = []ModuleTable{
	{Name: "crm.lead_records", FirstCol: "first_name", LastCol: "last_name", ZipCol: "zip_code", StatusCol: "status", DefaultStatus: "open"},
	{Name: "crm.sale_records", FirstCol: "first_name", LastCol: "last_name", ZipCol: "zip_code", StatusCol: "status", DefaultStatus: "completed"},
	{Name: "crm.renewal_records", FirstCol: "first_name", LastCol: "last_name", ZipCol: "zip_code", StatusCol: "status", DefaultStatus: RenewalStatusUncontacted},
	{Name: "crm.cancel_audit_records", FirstCol: "first_name", LastCol: "last_name", ZipCol: "zip_code", StatusCol: "status", DefaultStatus: CancelStatusOpen},
	{Name: "crm.winback_records", FirstCol: "first_name", LastCol: "last_name", ZipCol: "zip_code", StatusCol: "status", DefaultStatus: WinbackStatusActive},
}

// moduleNames maps the short module name used by uploads and the API to
// its table.
var moduleNames = map[string]ModuleTable{
	"lead":         ModuleTables[0],
	"sale":         ModuleTables[1],
	"renewal":      ModuleTables[2],
	"cancel_audit": ModuleTables[3],
	"winback":      ModuleTables[4],
}

// TableForModule returns the table for a short module name.
func TableForModule(module string) (ModuleTable, bool) {
	t, ok := moduleNames[module]
	return t, ok
}

// ContactFKs lists every (table, column) pair referencing crm.contacts.id.
// Merges must repoint each of these explicitly before deleting the losing
// contact; nothing cascades.
var ContactFKs = []struct {
	Table  string
	Column string
}{
	{"crm.lead_records", "contact_id"},
	{"crm.sale_records", "contact_id"},
	{"crm.renewal_records", "contact_id"},
	{"crm.cancel_audit_records", "contact_id"},
	{"crm.winback_records", "contact_id"},
	{"crm.activity_log", "contact_id"},
}
