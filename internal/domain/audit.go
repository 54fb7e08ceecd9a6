package domain

import "time"

// Audit operations written by the core.
const (
	AuditClosedLoopApply     = "CLOSED_LOOP_APPLY"
	AuditClosedLoopSuggest   = "CLOSED_LOOP_SUGGEST"
	AuditVariabilityClassify = "VARIABILITY_CLASSIFY"
)

// AuditEntry is one immutable audit-log record.
type AuditEntry struct {
	// ID is deterministic for a suggested change so re-running the same review does not duplicate rows.
	ID        string    `json:"id" db:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp" yaml:"timestamp"`
	Operation string    `json:"operation" db:"operation" yaml:"operation"`
	Details   string    `json:"details" db:"details" yaml:"details"`
	SKU       string    `json:"sku" db:"sku" yaml:"sku"`
	User      string    `json:"user" db:"username" yaml:"user"`
}
