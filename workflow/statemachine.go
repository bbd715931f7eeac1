package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Event is a named edge of the report lifecycle
type Event string

// Lifecycle events
const (
	EventValidate       Event = "validate"
	EventReject         Event = "reject"
	EventAssign         Event = "assign"
	EventAccept         Event = "accept"
	EventDecline        Event = "decline"
	EventRespond        Event = "respond"
	EventResolve        Event = "resolve"
	EventReassign       Event = "reassign"
	EventApproveClosure Event = "approve_closure"
	EventRejectClosure  Event = "reject_closure"
)

type edge struct {
	from  models.ReportStatus
	event Event
	to    models.ReportStatus
}

// edges is the complete lifecycle. Anything not listed is an invalid transition.
var edges = []edge{
	{models.StatusPending, EventValidate, models.StatusValidated},
	{models.StatusPending, EventReject, models.StatusRejected},

	{models.StatusValidated, EventAssign, models.StatusAssigned},
	{models.StatusValidated, EventReject, models.StatusRejected},

	{models.StatusAssigned, EventAccept, models.StatusAccepted},
	{models.StatusAssigned, EventDecline, models.StatusValidated},
	{models.StatusAssigned, EventReject, models.StatusRejected},
	{models.StatusAssigned, EventReassign, models.StatusAssigned},

	{models.StatusAccepted, EventRespond, models.StatusResponding},
	{models.StatusAccepted, EventDecline, models.StatusValidated},
	{models.StatusAccepted, EventReject, models.StatusRejected},
	{models.StatusAccepted, EventReassign, models.StatusAssigned},

	{models.StatusResponding, EventResolve, models.StatusResolved},
	{models.StatusResponding, EventReject, models.StatusRejected},
	{models.StatusResponding, EventReassign, models.StatusAssigned},

	{models.StatusResolved, EventApproveClosure, models.StatusResolved},
	{models.StatusResolved, EventRejectClosure, models.StatusResponding},
}

// overrides are only reachable through their dedicated operations, never by
// asking for a target status
var overrides = map[Event]bool{
	EventReassign:       true,
	EventApproveClosure: true,
}

var eventRoles = map[Event][]models.ActorRole{
	EventValidate:       {models.RoleDeskOfficer, models.RoleAdmin},
	EventReject:         {models.RoleDeskOfficer, models.RoleSupervisor, models.RoleAdmin},
	EventAssign:         {models.RoleDeskOfficer, models.RoleSupervisor, models.RoleAdmin},
	EventRespond:        {models.RoleSupervisor, models.RoleAdmin},
	EventResolve:        {models.RoleSupervisor, models.RoleAdmin},
	EventReassign:       {models.RoleSupervisor, models.RoleAdmin},
	EventApproveClosure: {models.RoleSupervisor, models.RoleAdmin},
	EventRejectClosure:  {models.RoleSupervisor, models.RoleAdmin},
}

// events the assigned officer may perform on their own report
var officerEvents = map[Event]bool{
	EventAccept:  true,
	EventDecline: true,
	EventRespond: true,
	EventResolve: true,
}

// citizen-visible statuses notify the reporter when reached through ChangeStatus
var citizenVisible = map[models.ReportStatus]string{
	models.StatusResponding: "An officer is responding to your report",
	models.StatusResolved:   "Your report has been resolved",
	models.StatusRejected:   "Your report has been rejected",
}

// EventFor returns the event that moves a report from one status to another
func EventFor(from, to models.ReportStatus) (Event, bool) {
	for _, e := range edges {
		if e.from == from && e.to == to && !overrides[e.event] {
			return e.event, true
		}
	}
	return "", false
}

// Allowed lists the statuses reachable from status by target
func Allowed(status models.ReportStatus) []models.ReportStatus {
	var out []models.ReportStatus
	for _, e := range edges {
		if e.from == status && !overrides[e.event] {
			out = append(out, e.to)
		}
	}
	return out
}

func edgeFor(from models.ReportStatus, ev Event) (edge, bool) {
	for _, e := range edges {
		if e.from == from && e.event == ev {
			return e, true
		}
	}
	return edge{}, false
}

// Request is one lifecycle event applied to a report
type Request struct {
	Event       Event
	Actor       models.Actor
	Notes       string
	TriageLevel models.TriageLevel
	// Officer is the target of assign and reassign, and the officer a
	// rejected closure returns to
	Officer *models.Officer
	// Auto and PickReason are set when the officer came from the picker
	Auto       bool
	PickReason string
	// Citizen controls whether a citizen-visible status notifies the reporter
	Citizen bool
}

// Outcome is the result of a successful Apply. Report is a fresh copy; Previous
// is the untouched input.
type Outcome struct {
	Previous models.Report
	Report   models.Report
	Effects  []Effect
}

// Machine validates and applies lifecycle events. It performs no I/O apart
// from blotter number issuance on validation; audit and notification work is
// returned as Effects for the caller to execute.
type Machine struct {
	Numberer Numberer
	Now      func() time.Time
}

// NewMachine returns a Machine issuing numbers from numberer
func NewMachine(numberer Numberer) *Machine {
	return &Machine{Numberer: numberer}
}

// Transition moves report to target. The event is derived from the current
// and target status; self-transitions and unlisted edges fail with
// models.ErrInvalidTransition.
func (m *Machine) Transition(ctx context.Context, report models.Report, target models.ReportStatus, actor models.Actor, notes string) (Outcome, error) {
	ev, ok := EventFor(report.Status, target)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, report.Status, target)
	}
	return m.Apply(ctx, report, Request{Event: ev, Actor: actor, Notes: notes, Citizen: true})
}

// Apply validates req against report and returns the updated report and the
// effects to perform. report is never modified.
func (m *Machine) Apply(ctx context.Context, report models.Report, req Request) (Outcome, error) {
	e, ok := edgeFor(report.Status, req.Event)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: cannot %s a %s report", models.ErrInvalidTransition, req.Event, report.Status)
	}
	if err := authorize(report, req); err != nil {
		return Outcome{}, err
	}
	if err := precheck(report, req); err != nil {
		return Outcome{}, err
	}

	next := report.Clone()
	now := m.now()
	notes := strings.TrimSpace(req.Notes)
	var effects []Effect

	switch req.Event {
	case EventValidate:
		if req.TriageLevel != "" {
			next.TriageLevel = req.TriageLevel
		}
		if notes != "" {
			next.TriageNotes = notes
		}
		if next.BlotterNumber == "" {
			if m.Numberer == nil {
				return Outcome{}, fmt.Errorf("no blotter numberer configured")
			}
			number, err := m.Numberer.Next(ctx)
			if err != nil {
				return Outcome{}, err
			}
			next.BlotterNumber = number
		}
		next.Status = e.to
		effects = append(effects, reportAudit(req.Actor, models.ActionReportStatusChange, next, models.StatusChangeDetails{
			From:          report.Status,
			To:            e.to,
			BlotterNumber: next.BlotterNumber,
			TriageLevel:   next.TriageLevel,
			HasNotes:      notes != "",
		}))

	case EventReject, EventRespond, EventResolve:
		next.Status = e.to
		switch req.Event {
		case EventReject:
			next.RejectionNotes = notes
			release(&next)
		case EventResolve:
			next.ResolutionNotes = notes
			release(&next)
		}
		effects = append(effects, reportAudit(req.Actor, models.ActionReportStatusChange, next, models.StatusChangeDetails{
			From:     report.Status,
			To:       e.to,
			HasNotes: notes != "",
		}))
		if body, ok := citizenVisible[e.to]; ok && req.Citizen && next.ReporterID != "" {
			effects = append(effects, notifyEffect(next.ReporterID, "Report update", body, next))
		}

	case EventAssign:
		next.Status = e.to
		next.AssignedOfficerID = req.Officer.UID
		next.AssignmentStatus = models.AssignmentPending
		next.AssignedBy = req.Actor.ID
		action := models.ActionReportAssigned
		if req.Auto {
			action = models.ActionReportAutoAssigned
		}
		effects = append(effects,
			reportAudit(req.Actor, action, next, models.AssignmentDetails{
				OfficerID:      req.Officer.UID,
				PreviousStatus: report.Status,
				Reason:         req.PickReason,
				Auto:           req.Auto,
			}),
			notifyEffect(req.Officer.UID, "New assignment", assignmentBody(next), next),
		)

	case EventAccept:
		next.Status = e.to
		next.AssignmentStatus = models.AssignmentAccepted
		effects = append(effects, reportAudit(req.Actor, models.ActionAssignmentAccept, next, models.AssignmentResponseDetails{
			OfficerID:        report.AssignedOfficerID,
			AssignmentStatus: models.AssignmentAccepted,
			From:             report.Status,
			To:               e.to,
		}))

	case EventDecline:
		next.Status = e.to
		next.AssignmentHistory = append(next.AssignmentHistory, models.AssignmentRecord{
			OfficerID: report.AssignedOfficerID,
			Outcome:   models.AssignmentDeclined,
			Reason:    notes,
			ActorID:   req.Actor.ID,
			At:        now,
		})
		release(&next)
		effects = append(effects, reportAudit(req.Actor, models.ActionAssignmentDecline, next, models.AssignmentResponseDetails{
			OfficerID:        report.AssignedOfficerID,
			AssignmentStatus: models.AssignmentDeclined,
			From:             report.Status,
			To:               e.to,
			ReasonLength:     len(notes),
		}))
		if report.AssignedBy != "" && report.AssignedBy != req.Actor.ID {
			effects = append(effects, notifyEffect(report.AssignedBy, "Assignment declined",
				fmt.Sprintf("Officer %s declined report %s", report.AssignedOfficerID, reportLabel(next)), next))
		}

	case EventReassign:
		previous := report.AssignedOfficerID
		next.AssignmentHistory = append(next.AssignmentHistory, models.AssignmentRecord{
			OfficerID: previous,
			Outcome:   report.AssignmentStatus,
			Reason:    notes,
			ActorID:   req.Actor.ID,
			At:        now,
		})
		next.Status = e.to
		next.AssignedOfficerID = req.Officer.UID
		next.AssignmentStatus = models.AssignmentPending
		next.AssignedBy = req.Actor.ID
		next.LastAssignedOfficerID = previous
		effects = append(effects,
			reportAudit(req.Actor, models.ActionSupervisorReassign, next, models.AssignmentDetails{
				OfficerID:         req.Officer.UID,
				PreviousOfficerID: previous,
				PreviousStatus:    report.Status,
				Reason:            req.PickReason,
				Auto:              req.Auto,
			}),
			notifyEffect(req.Officer.UID, "New assignment", assignmentBody(next), next),
			notifyEffect(previous, "Assignment withdrawn",
				fmt.Sprintf("Report %s was reassigned by a supervisor", reportLabel(next)), next),
		)

	case EventApproveClosure:
		next.ClosureReview = &models.ClosureReview{
			Decision:   models.ClosureApproved,
			ReviewerID: req.Actor.ID,
			At:         now,
		}
		effects = append(effects, reportAudit(req.Actor, models.ActionClosureApprove, next, models.ClosureDetails{
			Decision:  models.ClosureApproved,
			OfficerID: report.LastAssignedOfficerID,
		}))
		if report.LastAssignedOfficerID != "" {
			effects = append(effects, notifyEffect(report.LastAssignedOfficerID, "Closure approved",
				fmt.Sprintf("Closure of report %s was approved", reportLabel(next)), next))
		}

	case EventRejectClosure:
		next.Status = e.to
		next.AssignedOfficerID = report.LastAssignedOfficerID
		next.AssignmentStatus = models.AssignmentAccepted
		next.ResolutionNotes = ""
		next.ClosureReview = &models.ClosureReview{
			Decision:   models.ClosureRejected,
			ReviewerID: req.Actor.ID,
			Reason:     notes,
			At:         now,
		}
		effects = append(effects,
			reportAudit(req.Actor, models.ActionClosureReject, next, models.ClosureDetails{
				Decision:     models.ClosureRejected,
				OfficerID:    next.AssignedOfficerID,
				ReasonLength: len(notes),
			}),
			notifyEffect(next.AssignedOfficerID, "Closure rejected",
				fmt.Sprintf("Report %s was returned to responding", reportLabel(next)), next),
		)
	}

	next.UpdatedAt = now
	return Outcome{Previous: report, Report: next, Effects: effects}, nil
}

// release detaches the assigned officer, keeping who held it last for workload history
func release(r *models.Report) {
	if r.AssignedOfficerID != "" {
		r.LastAssignedOfficerID = r.AssignedOfficerID
	}
	r.AssignedOfficerID = ""
	r.AssignmentStatus = ""
	r.AssignedBy = ""
}

func authorize(report models.Report, req Request) error {
	if req.Actor.ID == "" {
		return fmt.Errorf("%w: anonymous actor", models.ErrPermissionDenied)
	}
	if officerEvents[req.Event] && req.Actor.ID == report.AssignedOfficerID {
		return nil
	}
	for _, role := range eventRoles[req.Event] {
		if req.Actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not %s report %s", models.ErrPermissionDenied, req.Actor.Role, req.Event, report.ID)
}

func precheck(report models.Report, req Request) error {
	notes := strings.TrimSpace(req.Notes)
	switch req.Event {
	case EventValidate:
		if req.TriageLevel != "" && !req.TriageLevel.Valid() {
			return fmt.Errorf("%w: triage level %q", models.ErrInvalidField, req.TriageLevel)
		}
	case EventReject, EventResolve:
		if notes == "" {
			return fmt.Errorf("%w: notes are required to %s a report", models.ErrMissingRequiredField, req.Event)
		}
	case EventAssign, EventReassign:
		if req.Officer == nil || req.Officer.UID == "" {
			return fmt.Errorf("%w: assigned officer", models.ErrMissingRequiredField)
		}
		if !IsAssignable(*req.Officer) {
			return fmt.Errorf("%w: officer %s is not assignable (%s, %s)", models.ErrInvalidField, req.Officer.UID, req.Officer.Role, req.Officer.Status)
		}
		if req.Event == EventReassign {
			if notes == "" {
				return fmt.Errorf("%w: a reason is required to reassign", models.ErrMissingRequiredField)
			}
			if req.Officer.UID == report.AssignedOfficerID {
				return fmt.Errorf("%w: report %s is already assigned to %s", models.ErrInvalidTransition, report.ID, req.Officer.UID)
			}
		}
	case EventAccept:
		if report.AssignmentStatus != models.AssignmentPending {
			return fmt.Errorf("%w: assignment is %q, not pending", models.ErrInvalidTransition, report.AssignmentStatus)
		}
	case EventDecline:
		if notes == "" {
			return fmt.Errorf("%w: a decline reason is required", models.ErrMissingRequiredField)
		}
		want := models.AssignmentPending
		if report.Status == models.StatusAccepted {
			want = models.AssignmentAccepted
		}
		if report.AssignmentStatus != want {
			return fmt.Errorf("%w: cannot decline a %s report with assignment %q", models.ErrInvalidTransition, report.Status, report.AssignmentStatus)
		}
	case EventApproveClosure:
		if report.ClosureReview != nil && report.ClosureReview.Decision == models.ClosureApproved {
			return fmt.Errorf("%w: closure of %s is already approved", models.ErrInvalidTransition, report.ID)
		}
	case EventRejectClosure:
		if notes == "" {
			return fmt.Errorf("%w: a reason is required to reject a closure", models.ErrMissingRequiredField)
		}
		if report.LastAssignedOfficerID == "" {
			return fmt.Errorf("%w: report %s has no officer to return it to", models.ErrInvalidTransition, report.ID)
		}
		if req.Officer == nil || req.Officer.UID != report.LastAssignedOfficerID || !IsAssignable(*req.Officer) {
			return fmt.Errorf("%w: officer %s can no longer take report %s, reassign it instead", models.ErrInvalidTransition, report.LastAssignedOfficerID, report.ID)
		}
	}
	return nil
}

func assignmentBody(r models.Report) string {
	if r.Category != "" {
		return fmt.Sprintf("Report %s (%s) was assigned to you", reportLabel(r), r.Category)
	}
	return fmt.Sprintf("Report %s was assigned to you", reportLabel(r))
}

func reportLabel(r models.Report) string {
	if r.BlotterNumber != "" {
		return r.BlotterNumber
	}
	return r.ID
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}
