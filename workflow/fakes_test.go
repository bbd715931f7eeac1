package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linesmerrill/police-blotter-api/models"
	"github.com/linesmerrill/police-blotter-api/workflow"
)

var clock = time.Date(2024, time.May, 14, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return clock }

type memReports struct {
	mu      sync.Mutex
	reports map[string]models.Report
	getErr  error
	writes  int
}

func newMemReports(reports ...models.Report) *memReports {
	m := &memReports{reports: map[string]models.Report{}}
	for _, r := range reports {
		m.reports[r.ID] = r
	}
	return m
}

func (m *memReports) Get(_ context.Context, id string) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.Report{}, m.getErr
	}
	r, ok := m.reports[id]
	if !ok {
		return models.Report{}, fmt.Errorf("%w: report %s", models.ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (m *memReports) Replace(_ context.Context, expectedVersion int64, report models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reports[report.ID]
	if !ok {
		return fmt.Errorf("%w: report %s", models.ErrNotFound, report.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: report %s", models.ErrConflict, report.ID)
	}
	m.reports[report.ID] = report.Clone()
	m.writes++
	return nil
}

func (m *memReports) Insert(_ context.Context, report models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.ID]; ok {
		return fmt.Errorf("%w: report %s exists", models.ErrConflict, report.ID)
	}
	m.reports[report.ID] = report.Clone()
	m.writes++
	return nil
}

func (m *memReports) ListByOfficers(_ context.Context, ids []string) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Report
	for _, r := range m.reports {
		if want[r.AssignedOfficerID] || want[r.LastAssignedOfficerID] {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memReports) stored(id string) models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[id]
}

type memOfficers struct {
	mu       sync.Mutex
	officers map[string]models.Officer
}

func newMemOfficers(officers ...models.Officer) *memOfficers {
	m := &memOfficers{officers: map[string]models.Officer{}}
	for _, o := range officers {
		m.officers[o.UID] = o
	}
	return m
}

func (m *memOfficers) Get(_ context.Context, uid string) (models.Officer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.officers[uid]
	if !ok {
		return models.Officer{}, fmt.Errorf("%w: officer %s", models.ErrNotFound, uid)
	}
	return o, nil
}

func (m *memOfficers) ListActive(_ context.Context) ([]models.Officer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Officer
	for _, o := range m.officers {
		if o.Status == models.OfficerActive {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOfficers) Update(_ context.Context, officer models.Officer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.officers[officer.UID]; !ok {
		return fmt.Errorf("%w: officer %s", models.ErrNotFound, officer.UID)
	}
	m.officers[officer.UID] = officer
	return nil
}

type seqNumberer struct {
	n        int
	err      error
	released []string
}

func (s *seqNumberer) Next(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("2024-05-%06d", s.n), nil
}

func (s *seqNumberer) Release(_ context.Context, number string) error {
	if number != fmt.Sprintf("2024-05-%06d", s.n) {
		return fmt.Errorf("%w: %s is not the latest number", models.ErrConflict, number)
	}
	s.n--
	s.released = append(s.released, number)
	return nil
}

// fakeTx runs fn directly and counts how often it was asked to
type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type auditCall struct {
	ActorID    string
	Action     models.AuditAction
	TargetType string
	TargetID   string
	Details    map[string]interface{}
}

type recordingAuditor struct {
	calls []auditCall
	err   error
}

func (r *recordingAuditor) Record(_ context.Context, actorID string, action models.AuditAction, targetType, targetID string, details models.AuditDetails) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, auditCall{actorID, action, targetType, targetID, details.Fields()})
	return nil
}

type sentNotification struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]interface{}
}

type recordingNotifier struct {
	sent []sentNotification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, recipientID, title, body string, data map[string]interface{}) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.sent = append(r.sent, sentNotification{recipientID, title, body, data})
	return fmt.Sprintf("n%d", len(r.sent)), nil
}

type harness struct {
	reports  *memReports
	officers *memOfficers
	numberer *seqNumberer
	audit    *recordingAuditor
	notify   *recordingNotifier
	orch     *workflow.Orchestrator
}

func newHarness(reports []models.Report, officers []models.Officer) *harness {
	h := &harness{
		reports:  newMemReports(reports...),
		officers: newMemOfficers(officers...),
		numberer: &seqNumberer{},
		audit:    &recordingAuditor{},
		notify:   &recordingNotifier{},
	}
	h.orch = workflow.NewOrchestrator(h.reports, h.officers, h.numberer, h.audit, h.notify)
	h.orch.Now = fixedNow
	h.orch.NewID = func() string { return "note-1" }
	return h
}

var (
	desk       = models.Actor{ID: "desk-1", Role: models.RoleDeskOfficer}
	supervisor = models.Actor{ID: "sup-1", Role: models.RoleSupervisor}
	admin      = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	citizen    = models.Actor{ID: "citizen-1", Role: models.RoleCitizen}
)

func officer(uid string) models.Officer {
	return models.Officer{UID: uid, Name: uid, Role: models.OfficerRoleOfficer, Status: models.OfficerActive}
}

func officerActor(uid string) models.Actor {
	return models.Actor{ID: uid, Role: models.RoleOfficer}
}

func report(id string, status models.ReportStatus) models.Report {
	r := models.Report{
		ID:          id,
		ReporterID:  citizen.ID,
		Category:    "theft",
		Description: "bike stolen",
		Status:      status,
		Priority:    models.PriorityMedium,
		Version:     1,
		CreatedAt:   clock.Add(-time.Hour),
		UpdatedAt:   clock.Add(-time.Hour),
	}
	if status != models.StatusPending {
		r.BlotterNumber = "2024-05-000042"
	}
	return r
}

func assignedReport(id string, status models.ReportStatus, officerID string, updated time.Time) models.Report {
	r := report(id, status)
	r.AssignedOfficerID = officerID
	r.AssignmentStatus = models.AssignmentPending
	if status != models.StatusAssigned {
		r.AssignmentStatus = models.AssignmentAccepted
	}
	r.UpdatedAt = updated
	return r
}
