package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditVersion identifies the audit entry schema.
const AuditVersion = 1

// AuditEvent is one entry in an entity's ordered audit trail.
type AuditEvent struct {
	Version   int            `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// AuditTrail is a versioned, append-only list of audit events stored as a
// JSON array column. It replaces free-form metadata blobs so settlement
// annotations stay machine-checkable.
type AuditTrail = datatypes.JSONSlice[AuditEvent]

// AppendAudit returns trail with a new event appended.
func AppendAudit(trail AuditTrail, actor, action string, detail map[string]any) AuditTrail {
	return append(trail, AuditEvent{
		Version:   AuditVersion,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	})
}
