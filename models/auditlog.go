package models

import "time"

// AuditAction is the closed vocabulary of audited actions
type AuditAction string

// Audit actions
const (
	ActionReportStatusChange   AuditAction = "report_status_change"
	ActionReportPriorityChange AuditAction = "report_priority_change"
	ActionReportAssigned       AuditAction = "report_assigned"
	ActionReportAutoAssigned   AuditAction = "report_auto_assigned"
	ActionReportDeletion       AuditAction = "report_deletion"
	ActionReportCommentAdd     AuditAction = "report_comment_add"
	ActionUserRoleChange       AuditAction = "user_role_change"
	ActionUserStatusChange     AuditAction = "user_status_change"
	ActionAdminLogin           AuditAction = "admin_login"
	ActionAdminLogout          AuditAction = "admin_logout"
	ActionAssignmentAccept     AuditAction = "assignment_accept"
	ActionAssignmentDecline    AuditAction = "assignment_decline"
	ActionSupervisorReassign   AuditAction = "supervisor_reassign"
	ActionClosureApprove       AuditAction = "closure_approve"
	ActionClosureReject        AuditAction = "closure_reject"
	ActionEvidenceAdd          AuditAction = "evidence_add"
	ActionOfficerNoteAdd       AuditAction = "officer_note_add"
)

var auditActions = map[AuditAction]struct{}{
	ActionReportStatusChange: {}, ActionReportPriorityChange: {}, ActionReportAssigned: {},
	ActionReportAutoAssigned: {}, ActionReportDeletion: {}, ActionReportCommentAdd: {},
	ActionUserRoleChange: {}, ActionUserStatusChange: {}, ActionAdminLogin: {},
	ActionAdminLogout: {}, ActionAssignmentAccept: {}, ActionAssignmentDecline: {},
	ActionSupervisorReassign: {}, ActionClosureApprove: {}, ActionClosureReject: {},
	ActionEvidenceAdd: {}, ActionOfficerNoteAdd: {},
}

// Valid reports whether a is part of the audit vocabulary
func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

// Audit target types
const (
	TargetReport  = "report"
	TargetOfficer = "officer"
	TargetUser    = "user"
)

// AuditLogEntry holds the structure for the audit_logs collection in mongo.
// Entries are inserted once and never updated or deleted.
type AuditLogEntry struct {
	ID         string                 `json:"id" bson:"_id"`
	ActorID    string                 `json:"actorId" bson:"actorId"`
	Action     AuditAction            `json:"action" bson:"action"`
	TargetType string                 `json:"targetType" bson:"targetType"`
	TargetID   string                 `json:"targetId" bson:"targetId"`
	Details    map[string]interface{} `json:"details" bson:"details"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
}

// AuditDetails is implemented by the typed detail payloads. Fields only ever
// returns scalar values; free-text bodies never enter the log.
type AuditDetails interface {
	Kind() string
	Fields() map[string]interface{}
}

// StatusChangeDetails describes a status transition
type StatusChangeDetails struct {
	From          ReportStatus
	To            ReportStatus
	BlotterNumber string
	TriageLevel   TriageLevel
	HasNotes      bool
}

// Kind implements AuditDetails
func (StatusChangeDetails) Kind() string { return "status_change" }

// Fields implements AuditDetails
func (d StatusChangeDetails) Fields() map[string]interface{} {
	m := map[string]interface{}{
		"kind":     d.Kind(),
		"old":      string(d.From),
		"new":      string(d.To),
		"hasNotes": d.HasNotes,
	}
	if d.BlotterNumber != "" {
		m["blotterNumber"] = d.BlotterNumber
	}
	if d.TriageLevel != "" {
		m["triageLevel"] = string(d.TriageLevel)
	}
	return m
}

// PriorityChangeDetails describes a priority change
type PriorityChangeDetails struct {
	From Priority
	To   Priority
}

// Kind implements AuditDetails
func (PriorityChangeDetails) Kind() string { return "priority_change" }

// Fields implements AuditDetails
func (d PriorityChangeDetails) Fields() map[string]interface{} {
	return map[string]interface{}{"kind": d.Kind(), "old": string(d.From), "new": string(d.To)}
}

// AssignmentDetails describes an assignment, auto-assignment or reassignment.
// Reason is the machine-readable picker reason, never operator free text.
type AssignmentDetails struct {
	OfficerID         string
	PreviousOfficerID string
	PreviousStatus    ReportStatus
	Reason            string
	Auto              bool
}

// Kind implements AuditDetails
func (AssignmentDetails) Kind() string { return "assignment" }

// Fields implements AuditDetails
func (d AssignmentDetails) Fields() map[string]interface{} {
	m := map[string]interface{}{
		"kind":      d.Kind(),
		"officerId": d.OfficerID,
		"auto":      d.Auto,
	}
	if d.PreviousOfficerID != "" {
		m["previousOfficerId"] = d.PreviousOfficerID
	}
	if d.PreviousStatus != "" {
		m["previousStatus"] = string(d.PreviousStatus)
	}
	if d.Reason != "" {
		m["reason"] = d.Reason
	}
	return m
}

// AssignmentResponseDetails describes an officer accepting or declining
type AssignmentResponseDetails struct {
	OfficerID        string
	AssignmentStatus AssignmentStatus
	From             ReportStatus
	To               ReportStatus
	ReasonLength     int
}

// Kind implements AuditDetails
func (AssignmentResponseDetails) Kind() string { return "assignment_response" }

// Fields implements AuditDetails
func (d AssignmentResponseDetails) Fields() map[string]interface{} {
	return map[string]interface{}{
		"kind":             d.Kind(),
		"officerId":        d.OfficerID,
		"assignmentStatus": string(d.AssignmentStatus),
		"old":              string(d.From),
		"new":              string(d.To),
		"reasonLength":     d.ReasonLength,
	}
}

// ClosureDetails describes a supervisor closure review
type ClosureDetails struct {
	Decision     string
	OfficerID    string
	ReasonLength int
}

// Kind implements AuditDetails
func (ClosureDetails) Kind() string { return "closure_review" }

// Fields implements AuditDetails
func (d ClosureDetails) Fields() map[string]interface{} {
	return map[string]interface{}{
		"kind":         d.Kind(),
		"decision":     d.Decision,
		"officerId":    d.OfficerID,
		"reasonLength": d.ReasonLength,
	}
}

// AttachmentDetails describes a note, comment or evidence item added to a report.
// Only the attachment id and body length are kept.
type AttachmentDetails struct {
	AttachmentID string
	Length       int
	Count        int
}

// Kind implements AuditDetails
func (AttachmentDetails) Kind() string { return "attachment" }

// Fields implements AuditDetails
func (d AttachmentDetails) Fields() map[string]interface{} {
	return map[string]interface{}{
		"kind":         d.Kind(),
		"attachmentId": d.AttachmentID,
		"length":       d.Length,
		"count":        d.Count,
	}
}

// AccountDetails describes an officer role/status change
type AccountDetails struct {
	Field string
	Old   string
	New   string
}

// Kind implements AuditDetails
func (AccountDetails) Kind() string { return "account_change" }

// Fields implements AuditDetails
func (d AccountDetails) Fields() map[string]interface{} {
	return map[string]interface{}{"kind": d.Kind(), "field": d.Field, "old": d.Old, "new": d.New}
}

// SessionDetails describes an admin login or logout
type SessionDetails struct {
	Method string
}

// Kind implements AuditDetails
func (SessionDetails) Kind() string { return "session" }

// Fields implements AuditDetails
func (d SessionDetails) Fields() map[string]interface{} {
	return map[string]interface{}{"kind": d.Kind(), "method": d.Method}
}
