package record

import "time"

// AuditEntry is one immutable row of the append-only audit ledger. Exactly
// one entry is written per state-changing operation, including force
// overrides of attempts that would otherwise have been rejected.
type AuditEntry struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	RecordID   string     `json:"record_id"`
	Version    int        `json:"version"`
	Operation  Operation  `json:"operation"`
	Actor      string     `json:"actor"`
	At         time.Time  `json:"at"`

	// BeforeSummary/AfterSummary capture the status (and salient fields)
	// around the mutation so a reviewer can reconstruct the change.
	BeforeSummary string `json:"before_summary,omitempty"`
	AfterSummary  string `json:"after_summary,omitempty"`

	// OverrideReason is mandatory for force operations and empty otherwise
	OverrideReason string `json:"override_reason,omitempty"`
	Note           string `json:"note,omitempty"`
}
