// Package stage derives a contact's current lifecycle stage from the union
// of module records. The stage is never persisted; it is recomputed on every
// read so asynchronous module writes can never leave it stale.
package stage

import "github.com/sells-group/agency-crm/internal/records"

// Stage is the derived lifecycle classification of a contact.
type Stage string

// Stages in priority order, highest first. The ordering is a business
// decision (a household mid-win-back outranks a stale quote in triage) and
// must not be reordered.
const (
	Winback     Stage = "winback"
	Customer    Stage = "customer"
	CancelAudit Stage = "cancel_audit"
	Renewal     Stage = "renewal"
	Quoted      Stage = "quoted"
	OpenLead    Stage = "open_lead"
)

// All lists every stage in priority order.
var All = []Stage{Winback, Customer, CancelAudit, Renewal, Quoted, OpenLead}

// Valid reports whether s is a known stage value.
func Valid(s Stage) bool {
	for _, v := range All {
		if v == s {
			return true
		}
	}
	return false
}

// Classify runs the fixed priority cascade over the module predicates.
// It always returns a defined stage; a contact with no module records at
// all is an open lead, never "unknown".
func Classify(s records.Snapshot) Stage {
	switch {
	case s.HasActiveWinback:
		return Winback
	case s.IsCustomer():
		return Customer
	case s.HasOpenCancelAudit:
		return CancelAudit
	case s.HasOpenRenewal:
		return Renewal
	case s.HasOpenQuote:
		return Quoted
	default:
		return OpenLead
	}
}

// CaseSQL returns a SQL CASE expression mirroring Classify for a contacts
// row aliased as contactAlias, so list queries can filter and sort on the
// derived stage without a second code path deciding priorities.
func CaseSQL(contactAlias string) string {
	c := contactAlias
	return `CASE
    WHEN EXISTS (SELECT 1 FROM crm.winback_records w WHERE w.agency_id = ` + c + `.agency_id AND w.contact_id = ` + c + `.id AND w.status = 'active')
        THEN 'winback'
    WHEN EXISTS (SELECT 1 FROM crm.sale_records s WHERE s.agency_id = ` + c + `.agency_id AND s.contact_id = ` + c + `.id)
        OR EXISTS (SELECT 1 FROM crm.renewal_records rn WHERE rn.agency_id = ` + c + `.agency_id AND rn.contact_id = ` + c + `.id AND rn.status = 'renewed')
        OR EXISTS (SELECT 1 FROM crm.cancel_audit_records ca WHERE ca.agency_id = ` + c + `.agency_id AND ca.contact_id = ` + c + `.id AND ca.status = 'saved')
        OR EXISTS (SELECT 1 FROM crm.winback_records w2 WHERE w2.agency_id = ` + c + `.agency_id AND w2.contact_id = ` + c + `.id AND w2.status = 'won')
        THEN 'customer'
    WHEN EXISTS (SELECT 1 FROM crm.cancel_audit_records ca2 WHERE ca2.agency_id = ` + c + `.agency_id AND ca2.contact_id = ` + c + `.id AND ca2.status IN ('open', 'in_progress'))
        THEN 'cancel_audit'
    WHEN EXISTS (SELECT 1 FROM crm.renewal_records rn2 WHERE rn2.agency_id = ` + c + `.agency_id AND rn2.contact_id = ` + c + `.id AND rn2.status IN ('uncontacted', 'pending'))
        THEN 'renewal'
    WHEN EXISTS (SELECT 1 FROM crm.lead_records l WHERE l.agency_id = ` + c + `.agency_id AND l.contact_id = ` + c + `.id AND l.status = 'quoted')
        THEN 'quoted'
    ELSE 'open_lead'
END`
}
