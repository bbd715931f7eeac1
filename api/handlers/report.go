package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/api"
	"github.com/linesmerrill/police-blotter-api/models"
	"github.com/linesmerrill/police-blotter-api/workflow"
)

// Engine is the case workflow surface driven over HTTP
type Engine interface {
	GetReport(ctx context.Context, reportID string) (models.Report, error)
	SubmitReport(ctx context.Context, actor models.Actor, draft models.Report) (models.Report, error)
	ValidateReport(ctx context.Context, reportID string, actor models.Actor, triage models.TriageLevel, notes, officerID string) (*workflow.Result, error)
	AssignReport(ctx context.Context, reportID, officerID string, actor models.Actor) (*workflow.Result, error)
	ChangeStatus(ctx context.Context, reportID string, newStatus models.ReportStatus, actor models.Actor, notes string) (*workflow.Result, error)
	AcceptAssignment(ctx context.Context, reportID string, actor models.Actor) (*workflow.Result, error)
	DeclineAssignment(ctx context.Context, reportID string, actor models.Actor, reason string) (*workflow.Result, error)
	Reassign(ctx context.Context, reportID, officerID string, actor models.Actor, reason string) (*workflow.Result, error)
	ApproveClosure(ctx context.Context, reportID string, actor models.Actor) (*workflow.Result, error)
	RejectClosure(ctx context.Context, reportID string, actor models.Actor, reason string) (*workflow.Result, error)
	ChangePriority(ctx context.Context, reportID string, actor models.Actor, priority models.Priority) (*workflow.Result, error)
	AddOfficerNote(ctx context.Context, reportID string, actor models.Actor, body string) (*workflow.Result, error)
	AddComment(ctx context.Context, reportID string, actor models.Actor, body string) (*workflow.Result, error)
	AddEvidence(ctx context.Context, reportID string, actor models.Actor, uri string) (*workflow.Result, error)
	SetOfficerStatus(ctx context.Context, uid string, status models.OfficerStatus, actor models.Actor) (*workflow.OfficerResult, error)
	SetOfficerRole(ctx context.Context, uid string, role models.OfficerRole, actor models.Actor) (*workflow.OfficerResult, error)
}

// Report exported for testing purposes
type Report struct {
	Engine Engine
}

type caseRequest struct {
	OfficerID   string              `json:"officerId"`
	TriageLevel models.TriageLevel  `json:"triageLevel"`
	Notes       string              `json:"notes"`
	Reason      string              `json:"reason"`
	Status      models.ReportStatus `json:"status"`
	Priority    models.Priority     `json:"priority"`
	Body        string              `json:"body"`
	URI         string              `json:"uri"`
}

// caseOp runs one engine call with the decoded request
type caseOp func(ctx context.Context, reportID string, actor models.Actor, req caseRequest) (*workflow.Result, error)

// ReportByIDHandler returns a report by ID
func (h Report) ReportByIDHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	reportID := mux.Vars(r)["report_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := h.Engine.GetReport(ctx, reportID)
	if err != nil {
		writeError(w, "failed to get report", err)
		return
	}
	if !actor.IsStaff() && report.ReporterID != actor.ID {
		// citizens never learn whether someone else's report exists
		writeError(w, "failed to get report", models.ErrNotFound)
		return
	}
	if !actor.IsStaff() {
		report.OfficerNotes = nil
		report.AssignmentHistory = nil
	}
	writeJSON(w, http.StatusOK, report)
}

// CreateReportHandler files a new report for the caller
func (h Report) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var draft models.Report
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := h.Engine.SubmitReport(ctx, actor, draft)
	if err != nil {
		writeError(w, "failed to submit report", err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// ValidateReportHandler validates a pending report and optionally assigns it
func (h Report) ValidateReportHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to validate report", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.ValidateReport(ctx, id, actor, req.TriageLevel, req.Notes, req.OfficerID)
	})
}

// AssignReportHandler assigns a validated report to an officer or to AUTO
func (h Report) AssignReportHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to assign report", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.AssignReport(ctx, id, req.OfficerID, actor)
	})
}

// ChangeStatusHandler moves a report along the lifecycle
func (h Report) ChangeStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to change report status", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.ChangeStatus(ctx, id, req.Status, actor, req.Notes)
	})
}

// AcceptAssignmentHandler accepts the caller's assignment
func (h Report) AcceptAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to accept assignment", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.AcceptAssignment(ctx, id, actor)
	})
}

// DeclineAssignmentHandler declines the caller's assignment
func (h Report) DeclineAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to decline assignment", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.DeclineAssignment(ctx, id, actor, req.Reason)
	})
}

// ReassignHandler moves an open assignment to another officer
func (h Report) ReassignHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to reassign report", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.Reassign(ctx, id, req.OfficerID, actor, req.Reason)
	})
}

// ApproveClosureHandler signs off on a resolved report
func (h Report) ApproveClosureHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to approve closure", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.ApproveClosure(ctx, id, actor)
	})
}

// RejectClosureHandler sends a resolved report back to the officer
func (h Report) RejectClosureHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to reject closure", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.RejectClosure(ctx, id, actor, req.Reason)
	})
}

// ChangePriorityHandler updates a report's priority
func (h Report) ChangePriorityHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to change report priority", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.ChangePriority(ctx, id, actor, req.Priority)
	})
}

// OfficerNoteHandler adds an internal officer note
func (h Report) OfficerNoteHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to add officer note", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.AddOfficerNote(ctx, id, actor, req.Body)
	})
}

// CommentHandler adds a comment visible to the reporter
func (h Report) CommentHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to add comment", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.AddComment(ctx, id, actor, req.Body)
	})
}

// EvidenceHandler attaches a media reference
func (h Report) EvidenceHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "failed to add evidence", func(ctx context.Context, id string, actor models.Actor, req caseRequest) (*workflow.Result, error) {
		return h.Engine.AddEvidence(ctx, id, actor, req.URI)
	})
}

func (h Report) serve(w http.ResponseWriter, r *http.Request, failure string, op caseOp) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	reportID := mux.Vars(r)["report_id"]

	var req caseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := op(ctx, reportID, actor, req)
	if err != nil {
		zap.S().Debugw(failure, "reportId", reportID, "actorId", actor.ID, "error", err)
		writeError(w, failure, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
