package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// AutoAssign asks AssignReport and Reassign to let the picker choose
const AutoAssign = "AUTO"

// Result is returned by every mutating operation. Previous is the report as it
// was before the write so callers can roll back any optimistic state.
type Result struct {
	Previous models.Report   `json:"previous"`
	Report   models.Report   `json:"report"`
	Effects  []EffectOutcome `json:"effects"`
	Pick     *Pick           `json:"pick,omitempty"`
	// AssignmentError is set when ValidateReport committed the validation but
	// the chained assignment did not take effect
	AssignmentError string `json:"assignmentError,omitempty"`
}

// EffectsOK reports whether every side effect succeeded
func (r *Result) EffectsOK() bool {
	for _, e := range r.Effects {
		if !e.OK {
			return false
		}
	}
	return true
}

// OfficerResult is returned by officer account operations
type OfficerResult struct {
	Previous models.Officer  `json:"previous"`
	Officer  models.Officer  `json:"officer"`
	Effects  []EffectOutcome `json:"effects"`
}

// Orchestrator coordinates the state machine, picker, audit log and
// notification dispatcher for every case operation. Core mutations are
// committed first; audit and notification effects follow and never undo them.
// When Tx is set, blotter numbering and the validating write share one
// transaction.
type Orchestrator struct {
	Reports  ReportStore
	Officers OfficerStore
	Machine  *Machine
	Audit    Auditor
	Notifier Notifier
	Tx       Transactor
	Now      func() time.Time
	NewID    func() string
	Logger   *zap.SugaredLogger
}

// NewOrchestrator wires an Orchestrator. The machine reads the orchestrator's
// clock, so setting Now covers every timestamp.
func NewOrchestrator(reports ReportStore, officers OfficerStore, numberer Numberer, auditor Auditor, notifier Notifier) *Orchestrator {
	o := &Orchestrator{
		Reports:  reports,
		Officers: officers,
		Machine:  NewMachine(numberer),
		Audit:    auditor,
		Notifier: notifier,
	}
	o.Machine.Now = o.now
	return o
}

// GetReport loads one report
func (o *Orchestrator) GetReport(ctx context.Context, reportID string) (models.Report, error) {
	r, err := o.Reports.Get(ctx, reportID)
	return r, classify(err)
}

// ValidateReport moves a pending report to validated, stamping its blotter
// number. When officerID is set (or AutoAssign) the report is then assigned;
// a failed assignment leaves the validation in place and is reported in
// Result.AssignmentError.
func (o *Orchestrator) ValidateReport(ctx context.Context, reportID string, actor models.Actor, triage models.TriageLevel, notes, officerID string) (*Result, error) {
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	req := Request{
		Event:       EventValidate,
		Actor:       actor,
		Notes:       notes,
		TriageLevel: triage,
	}

	var (
		out  Outcome
		next models.Report
	)
	validate := func(ctx context.Context) error {
		var err error
		if out, err = o.Machine.Apply(ctx, report, req); err != nil {
			return err
		}
		next, err = o.write(ctx, out)
		return err
	}
	if o.Tx != nil {
		err = o.Tx.WithTransaction(ctx, validate)
	} else if err = validate(ctx); err != nil && errors.Is(err, models.ErrConflict) {
		o.releaseNumber(ctx, out)
	}
	if err != nil {
		return nil, classify(err)
	}
	res := &Result{Previous: out.Previous, Report: next, Effects: o.perform(ctx, out.Effects)}
	if officerID == "" {
		return res, nil
	}

	assigned, err := o.assign(ctx, res.Report, officerID, actor)
	if err != nil {
		o.logger().Warnw("report validated but assignment failed",
			"reportId", reportID,
			"officerId", officerID,
			"error", err)
		res.AssignmentError = err.Error()
		return res, nil
	}
	return &Result{
		Previous: res.Previous,
		Report:   assigned.Report,
		Effects:  append(res.Effects, assigned.Effects...),
		Pick:     assigned.Pick,
	}, nil
}

// AssignReport assigns a validated report to officerID, or to the picker's
// choice when officerID is AutoAssign
func (o *Orchestrator) AssignReport(ctx context.Context, reportID, officerID string, actor models.Actor) (*Result, error) {
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	return o.assign(ctx, report, officerID, actor)
}

func (o *Orchestrator) assign(ctx context.Context, report models.Report, officerID string, actor models.Actor) (*Result, error) {
	req := Request{Event: EventAssign, Actor: actor}
	pick, err := o.resolveOfficer(ctx, report, officerID, &req)
	if err != nil {
		return nil, err
	}
	out, err := o.Machine.Apply(ctx, report, req)
	if err != nil {
		return nil, classify(err)
	}
	res, err := o.commit(ctx, out)
	if err != nil {
		return nil, err
	}
	res.Pick = pick
	return res, nil
}

// resolveOfficer loads the target officer into req, running the picker for AutoAssign
func (o *Orchestrator) resolveOfficer(ctx context.Context, report models.Report, officerID string, req *Request, exclude ...string) (*Pick, error) {
	if officerID == "" {
		return nil, fmt.Errorf("%w: officerId", models.ErrMissingRequiredField)
	}
	if strings.EqualFold(officerID, AutoAssign) {
		picker := Picker{Officers: o.Officers, Reports: o.Reports}
		pick, officer, err := picker.Pick(ctx, report, exclude...)
		if err != nil {
			return nil, classify(err)
		}
		req.Officer = &officer
		req.Auto = true
		req.PickReason = pick.Reason
		return &pick, nil
	}
	officer, err := o.Officers.Get(ctx, officerID)
	if err != nil {
		return nil, classify(err)
	}
	req.Officer = &officer
	return nil, nil
}

// ChangeStatus applies a generic transition to newStatus. Reaching a
// citizen-visible status notifies the reporter. Asking for the current status
// again is an invalid transition.
func (o *Orchestrator) ChangeStatus(ctx context.Context, reportID string, newStatus models.ReportStatus, actor models.Actor, notes string) (*Result, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: status %q", models.ErrInvalidField, newStatus)
	}
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if newStatus == models.StatusAssigned {
		return nil, fmt.Errorf("%w: use assignment to move a report to assigned", models.ErrInvalidTransition)
	}
	if ev, ok := EventFor(report.Status, newStatus); ok && ev == EventRejectClosure {
		return o.rejectClosure(ctx, report, actor, notes)
	}
	out, err := o.Machine.Transition(ctx, report, newStatus, actor, notes)
	if err != nil {
		return nil, classify(err)
	}
	return o.commit(ctx, out)
}

// AcceptAssignment is performed by the assigned officer
func (o *Orchestrator) AcceptAssignment(ctx context.Context, reportID string, actor models.Actor) (*Result, error) {
	return o.apply(ctx, reportID, Request{Event: EventAccept, Actor: actor})
}

// DeclineAssignment returns the report to validated and releases the officer
func (o *Orchestrator) DeclineAssignment(ctx context.Context, reportID string, actor models.Actor, reason string) (*Result, error) {
	return o.apply(ctx, reportID, Request{Event: EventDecline, Actor: actor, Notes: reason})
}

// Reassign is a supervisor override moving an active assignment to another officer
func (o *Orchestrator) Reassign(ctx context.Context, reportID, officerID string, actor models.Actor, reason string) (*Result, error) {
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	req := Request{Event: EventReassign, Actor: actor, Notes: reason}
	if _, ok := edgeFor(report.Status, EventReassign); !ok {
		return nil, fmt.Errorf("%w: cannot reassign a %s report", models.ErrInvalidTransition, report.Status)
	}
	pick, err := o.resolveOfficer(ctx, report, officerID, &req, report.AssignedOfficerID)
	if err != nil {
		return nil, err
	}
	out, err := o.Machine.Apply(ctx, report, req)
	if err != nil {
		return nil, classify(err)
	}
	res, err := o.commit(ctx, out)
	if err != nil {
		return nil, err
	}
	res.Pick = pick
	return res, nil
}

// ApproveClosure records a supervisor's approval of a resolved report
func (o *Orchestrator) ApproveClosure(ctx context.Context, reportID string, actor models.Actor) (*Result, error) {
	return o.apply(ctx, reportID, Request{Event: EventApproveClosure, Actor: actor})
}

// RejectClosure sends a resolved report back to responding with the officer
// who resolved it. That officer must still be assignable; otherwise a
// supervisor has to reassign the report instead.
func (o *Orchestrator) RejectClosure(ctx context.Context, reportID string, actor models.Actor, reason string) (*Result, error) {
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	return o.rejectClosure(ctx, report, actor, reason)
}

func (o *Orchestrator) rejectClosure(ctx context.Context, report models.Report, actor models.Actor, reason string) (*Result, error) {
	req := Request{Event: EventRejectClosure, Actor: actor, Notes: reason}
	if report.LastAssignedOfficerID != "" {
		officer, err := o.Officers.Get(ctx, report.LastAssignedOfficerID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, classify(err)
		}
		if err == nil {
			req.Officer = &officer
		}
	}
	out, err := o.Machine.Apply(ctx, report, req)
	if err != nil {
		return nil, classify(err)
	}
	return o.commit(ctx, out)
}

func (o *Orchestrator) apply(ctx context.Context, reportID string, req Request) (*Result, error) {
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	out, err := o.Machine.Apply(ctx, report, req)
	if err != nil {
		return nil, classify(err)
	}
	return o.commit(ctx, out)
}

// ChangePriority updates the handling priority of a report
func (o *Orchestrator) ChangePriority(ctx context.Context, reportID string, actor models.Actor, priority models.Priority) (*Result, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", models.ErrInvalidField, priority)
	}
	if !hasRole(actor, models.RoleDeskOfficer, models.RoleSupervisor, models.RoleAdmin) {
		return nil, fmt.Errorf("%w: %s may not change priority", models.ErrPermissionDenied, actor.Role)
	}
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if report.Status == models.StatusRejected {
		return nil, fmt.Errorf("%w: report %s is rejected", models.ErrInvalidTransition, reportID)
	}
	if report.Priority == priority {
		return nil, fmt.Errorf("%w: priority is already %s", models.ErrInvalidTransition, priority)
	}

	next := report.Clone()
	next.Priority = priority
	next.UpdatedAt = o.now()
	return o.commit(ctx, Outcome{
		Previous: report,
		Report:   next,
		Effects: []Effect{reportAudit(actor, models.ActionReportPriorityChange, next, models.PriorityChangeDetails{
			From: report.Priority,
			To:   priority,
		})},
	})
}

// AddOfficerNote appends an internal note. The audit entry carries only the
// note id and length.
func (o *Orchestrator) AddOfficerNote(ctx context.Context, reportID string, actor models.Actor, body string) (*Result, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body", models.ErrMissingRequiredField)
	}
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !report.Status.IsOpenAssignment() && report.Status != models.StatusResolved {
		return nil, fmt.Errorf("%w: cannot add officer notes to a %s report", models.ErrInvalidTransition, report.Status)
	}
	if !o.handles(report, actor) {
		return nil, fmt.Errorf("%w: only the handling officer or a supervisor may add notes", models.ErrPermissionDenied)
	}

	note := o.note(actor, body)
	next := report.Clone()
	next.OfficerNotes = append(next.OfficerNotes, note)
	next.UpdatedAt = note.CreatedAt
	return o.commit(ctx, Outcome{
		Previous: report,
		Report:   next,
		Effects: []Effect{reportAudit(actor, models.ActionOfficerNoteAdd, next, models.AttachmentDetails{
			AttachmentID: note.ID,
			Length:       len(body),
			Count:        len(next.OfficerNotes),
		})},
	})
}

// AddComment appends a comment visible to the reporter. Citizens may only
// comment on their own reports; staff comments notify the reporter.
func (o *Orchestrator) AddComment(ctx context.Context, reportID string, actor models.Actor, body string) (*Result, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment body", models.ErrMissingRequiredField)
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: anonymous actor", models.ErrPermissionDenied)
	}
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !actor.IsStaff() && actor.ID != report.ReporterID {
		return nil, fmt.Errorf("%w: citizens may only comment on their own reports", models.ErrPermissionDenied)
	}

	comment := o.note(actor, body)
	next := report.Clone()
	next.Comments = append(next.Comments, comment)
	next.UpdatedAt = comment.CreatedAt
	effects := []Effect{reportAudit(actor, models.ActionReportCommentAdd, next, models.AttachmentDetails{
		AttachmentID: comment.ID,
		Length:       len(body),
		Count:        len(next.Comments),
	})}
	if actor.IsStaff() && report.ReporterID != "" && report.ReporterID != actor.ID {
		effects = append(effects, notifyEffect(report.ReporterID, "New comment",
			fmt.Sprintf("There is a new comment on report %s", reportLabel(next)), next))
	}
	return o.commit(ctx, Outcome{Previous: report, Report: next, Effects: effects})
}

// AddEvidence attaches an opaque media reference to a report
func (o *Orchestrator) AddEvidence(ctx context.Context, reportID string, actor models.Actor, uri string) (*Result, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: evidence uri", models.ErrMissingRequiredField)
	}
	report, err := o.Reports.Get(ctx, reportID)
	if err != nil {
		return nil, classify(err)
	}
	if !o.handles(report, actor) {
		return nil, fmt.Errorf("%w: only the handling officer or a supervisor may add evidence", models.ErrPermissionDenied)
	}
	for _, existing := range report.MediaRefs {
		if existing == uri {
			return nil, fmt.Errorf("%w: evidence already attached", models.ErrInvalidTransition)
		}
	}

	next := report.Clone()
	next.MediaRefs = append(next.MediaRefs, uri)
	next.UpdatedAt = o.now()
	return o.commit(ctx, Outcome{
		Previous: report,
		Report:   next,
		Effects: []Effect{reportAudit(actor, models.ActionEvidenceAdd, next, models.AttachmentDetails{
			AttachmentID: fmt.Sprintf("media-%d", len(next.MediaRefs)),
			Count:        len(next.MediaRefs),
		})},
	})
}

// SubmitReport files a new report for the calling actor. It starts pending with
// no blotter number; desk officers pick it up through ValidateReport.
func (o *Orchestrator) SubmitReport(ctx context.Context, actor models.Actor, draft models.Report) (models.Report, error) {
	if actor.ID == "" {
		return models.Report{}, fmt.Errorf("%w: anonymous actor", models.ErrPermissionDenied)
	}
	category := strings.TrimSpace(draft.Category)
	if category == "" {
		return models.Report{}, fmt.Errorf("%w: category", models.ErrMissingRequiredField)
	}
	description := strings.TrimSpace(draft.Description)
	if description == "" {
		return models.Report{}, fmt.Errorf("%w: description", models.ErrMissingRequiredField)
	}
	priority := draft.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Report{}, fmt.Errorf("%w: priority %q", models.ErrInvalidField, priority)
	}

	now := o.now()
	report := models.Report{
		ID:             o.newID(),
		ReporterID:     actor.ID,
		Category:       category,
		Subcategory:    strings.TrimSpace(draft.Subcategory),
		Description:    description,
		Location:       draft.Location,
		JurisdictionID: draft.JurisdictionID,
		MediaRefs:      append([]string(nil), draft.MediaRefs...),
		Status:         models.StatusPending,
		Priority:       priority,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.Reports.Insert(ctx, report); err != nil {
		return models.Report{}, classify(err)
	}
	o.logger().Infow("report submitted", "reportId", report.ID, "category", category)
	return report, nil
}

// SetOfficerStatus changes an officer's duty status. Admin only.
func (o *Orchestrator) SetOfficerStatus(ctx context.Context, uid string, status models.OfficerStatus, actor models.Actor) (*OfficerResult, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: officer status %q", models.ErrInvalidField, status)
	}
	return o.updateOfficer(ctx, uid, actor, models.ActionUserStatusChange, func(off *models.Officer) (string, string, error) {
		if off.Status == status {
			return "", "", fmt.Errorf("%w: officer %s is already %s", models.ErrInvalidTransition, uid, status)
		}
		old := off.Status
		off.Status = status
		return string(old), string(status), nil
	})
}

// SetOfficerRole changes an officer's role. Admin only.
func (o *Orchestrator) SetOfficerRole(ctx context.Context, uid string, role models.OfficerRole, actor models.Actor) (*OfficerResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: officer role %q", models.ErrInvalidField, role)
	}
	return o.updateOfficer(ctx, uid, actor, models.ActionUserRoleChange, func(off *models.Officer) (string, string, error) {
		if off.Role == role {
			return "", "", fmt.Errorf("%w: officer %s is already %s", models.ErrInvalidTransition, uid, role)
		}
		old := off.Role
		off.Role = role
		return string(old), string(role), nil
	})
}

func (o *Orchestrator) updateOfficer(ctx context.Context, uid string, actor models.Actor, action models.AuditAction, mutate func(*models.Officer) (string, string, error)) (*OfficerResult, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins manage officer accounts", models.ErrPermissionDenied)
	}
	prev, err := o.Officers.Get(ctx, uid)
	if err != nil {
		return nil, classify(err)
	}
	next := prev
	oldValue, newValue, err := mutate(&next)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = o.now()
	if err := o.Officers.Update(ctx, next); err != nil {
		return nil, classify(err)
	}

	field := "status"
	if action == models.ActionUserRoleChange {
		field = "role"
	}
	effects := o.perform(ctx, []Effect{auditEffect(actor, action, models.TargetOfficer, uid, models.AccountDetails{
		Field: field,
		Old:   oldValue,
		New:   newValue,
	})})
	return &OfficerResult{Previous: prev, Officer: next, Effects: effects}, nil
}

// commit writes the outcome and then performs its effects
func (o *Orchestrator) commit(ctx context.Context, out Outcome) (*Result, error) {
	next, err := o.write(ctx, out)
	if err != nil {
		return nil, classify(err)
	}
	return &Result{
		Previous: out.Previous,
		Report:   next,
		Effects:  o.perform(ctx, out.Effects),
	}, nil
}

// write stores the outcome with a versioned single-document update
func (o *Orchestrator) write(ctx context.Context, out Outcome) (models.Report, error) {
	next := out.Report
	next.Version = out.Previous.Version + 1
	if err := o.Reports.Replace(ctx, out.Previous.Version, next); err != nil {
		return models.Report{}, err
	}
	return next, nil
}

// releaseNumber returns a blotter number minted for a write that was rejected
func (o *Orchestrator) releaseNumber(ctx context.Context, out Outcome) {
	number := out.Report.BlotterNumber
	if number == "" || out.Previous.BlotterNumber != "" {
		return
	}
	if err := o.Machine.Numberer.Release(ctx, number); err != nil {
		o.logger().Warnw("blotter number left unused",
			"reportId", out.Report.ID,
			"number", number,
			"error", err)
	}
}

// perform runs effects in order. Failures are logged and reported, never returned.
func (o *Orchestrator) perform(ctx context.Context, effects []Effect) []EffectOutcome {
	outcomes := make([]EffectOutcome, 0, len(effects))
	for _, e := range effects {
		var (
			target string
			err    error
		)
		switch e.Kind {
		case EffectAudit:
			target = string(e.Audit.Action)
			if o.Audit == nil {
				err = errors.New("no audit log configured")
				break
			}
			err = o.Audit.Record(ctx, e.Audit.ActorID, e.Audit.Action, e.Audit.TargetType, e.Audit.TargetID, e.Audit.Details)
		case EffectNotify:
			target = e.Notify.RecipientID
			if o.Notifier == nil {
				err = errors.New("no notifier configured")
				break
			}
			_, err = o.Notifier.Send(ctx, e.Notify.RecipientID, e.Notify.Title, e.Notify.Body, e.Notify.Data)
		}

		outcome := EffectOutcome{Effect: e.Kind, Target: target, OK: err == nil}
		if err != nil {
			outcome.Error = err.Error()
			o.logger().Warnw("effect failed after commit",
				"effect", e.Kind,
				"target", target,
				"error", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (o *Orchestrator) handles(report models.Report, actor models.Actor) bool {
	if actor.ID != "" && (actor.ID == report.AssignedOfficerID || actor.ID == report.LastAssignedOfficerID) {
		return true
	}
	return hasRole(actor, models.RoleSupervisor, models.RoleAdmin)
}

func (o *Orchestrator) note(actor models.Actor, body string) models.Note {
	return models.Note{ID: o.newID(), AuthorID: actor.ID, Body: body, CreatedAt: o.now()}
}

func (o *Orchestrator) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return primitive.NewObjectID().Hex()
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logger() *zap.SugaredLogger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.S()
}

func hasRole(actor models.Actor, roles ...models.ActorRole) bool {
	for _, r := range roles {
		if actor.Role == r {
			return true
		}
	}
	return false
}

// classify maps deadline and cancellation errors onto models.ErrTimeout
func classify(err error) error {
	if err == nil || errors.Is(err, models.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return err
}
