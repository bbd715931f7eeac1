package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/police-blotter-api/api"
	"github.com/linesmerrill/police-blotter-api/models"
)

const auditPageSize = 200

// AuditLogReader lists audit history for a target
type AuditLogReader interface {
	ListByTarget(ctx context.Context, targetID string, limit int64) ([]models.AuditLogEntry, error)
}

// Admin exported for testing purposes
type Admin struct {
	Engine Engine
	Audit  AuditLogReader
}

type officerAccountRequest struct {
	Status models.OfficerStatus `json:"status"`
	Role   models.OfficerRole   `json:"role"`
}

// OfficerStatusHandler changes an officer's duty status
func (h Admin) OfficerStatusHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req officerAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := h.Engine.SetOfficerStatus(ctx, mux.Vars(r)["officer_id"], req.Status, actor)
	if err != nil {
		writeError(w, "failed to change officer status", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// OfficerRoleHandler changes an officer's role
func (h Admin) OfficerRoleHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req officerAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := h.Engine.SetOfficerRole(ctx, mux.Vars(r)["officer_id"], req.Role, actor)
	if err != nil {
		writeError(w, "failed to change officer role", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AuditLogsHandler returns the audit history of one target. Supervisors and admins only.
func (h Admin) AuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	if actor.Role != models.RoleSupervisor && actor.Role != models.RoleAdmin {
		writeError(w, "failed to get audit logs", fmt.Errorf("%w: audit logs are restricted", models.ErrPermissionDenied))
		return
	}
	targetID := r.URL.Query().Get("targetId")
	if targetID == "" {
		writeError(w, "failed to get audit logs", fmt.Errorf("%w: targetId", models.ErrMissingRequiredField))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	entries, err := h.Audit.ListByTarget(ctx, targetID, queryLimit(r, auditPageSize))
	if err != nil {
		writeError(w, "failed to get audit logs", err)
		return
	}
	if len(entries) == 0 {
		entries = []models.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
