package workflow

import "github.com/linesmerrill/police-blotter-api/models"

// EffectKind names a side effect performed after a mutation commits
type EffectKind string

// Effect kinds
const (
	EffectAudit  EffectKind = "audit"
	EffectNotify EffectKind = "notify"
)

// Effect is a side effect to perform once the mutation is committed.
// Exactly one of Audit and Notify is set.
type Effect struct {
	Kind   EffectKind
	Audit  *AuditEffect
	Notify *NotifyEffect
}

// AuditEffect describes one audit entry
type AuditEffect struct {
	ActorID    string
	Action     models.AuditAction
	TargetType string
	TargetID   string
	Details    models.AuditDetails
}

// NotifyEffect describes one inbox notification
type NotifyEffect struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]interface{}
}

// EffectOutcome reports how one effect went
type EffectOutcome struct {
	Effect EffectKind `json:"effect"`
	Target string     `json:"target"`
	OK     bool       `json:"ok"`
	Error  string     `json:"error,omitempty"`
}

func auditEffect(actor models.Actor, action models.AuditAction, targetType, targetID string, details models.AuditDetails) Effect {
	return Effect{Kind: EffectAudit, Audit: &AuditEffect{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}}
}

func reportAudit(actor models.Actor, action models.AuditAction, report models.Report, details models.AuditDetails) Effect {
	return auditEffect(actor, action, models.TargetReport, report.ID, details)
}

func notifyEffect(recipientID, title, body string, report models.Report) Effect {
	data := map[string]interface{}{
		"reportId": report.ID,
		"status":   string(report.Status),
	}
	if report.BlotterNumber != "" {
		data["blotterNumber"] = report.BlotterNumber
	}
	return Effect{Kind: EffectNotify, Notify: &NotifyEffect{
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
		Data:        data,
	}}
}
