package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/police-blotter-api/models"
)

type fakeStore struct {
	entries []models.AuditLogEntry
	err     error
}

func (f *fakeStore) Insert(ctx context.Context, entry models.AuditLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestLog_Record(t *testing.T) {
	store := &fakeStore{}
	l := New(store)
	l.Now = func() time.Time { return time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC) }
	l.NewID = func() string { return "audit-1" }

	err := l.Record(context.Background(), "desk-1", models.ActionReportStatusChange, models.TargetReport, "r1",
		models.StatusChangeDetails{From: models.StatusPending, To: models.StatusValidated, BlotterNumber: "2025-10-000001"})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	e := store.entries[0]
	assert.Equal(t, "audit-1", e.ID)
	assert.Equal(t, "desk-1", e.ActorID)
	assert.Equal(t, models.ActionReportStatusChange, e.Action)
	assert.Equal(t, "r1", e.TargetID)
	assert.Equal(t, "pending", e.Details["old"])
	assert.Equal(t, "validated", e.Details["new"])
	assert.Equal(t, "2025-10-000001", e.Details["blotterNumber"])
}

func TestLog_RecordRejectsUnknownAction(t *testing.T) {
	store := &fakeStore{}
	err := New(store).Record(context.Background(), "a", models.AuditAction("report_teleported"), models.TargetReport, "r1", nil)

	assert.True(t, errors.Is(err, models.ErrInvalidField))
	assert.Empty(t, store.entries)
}

func TestLog_RecordStoreFailureIsEffectFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("mocked-error")}
	err := New(store).Record(context.Background(), "a", models.ActionAssignmentAccept, models.TargetReport, "r1", nil)

	assert.True(t, errors.Is(err, models.ErrEffectFailure))
}

func TestDetailsNeverCarryFreeText(t *testing.T) {
	details := []models.AuditDetails{
		models.AssignmentResponseDetails{OfficerID: "o1", AssignmentStatus: models.AssignmentDeclined, ReasonLength: len("wrong precinct")},
		models.AttachmentDetails{AttachmentID: "n1", Length: 120, Count: 3},
		models.ClosureDetails{Decision: models.ClosureRejected, OfficerID: "o1", ReasonLength: 9},
	}
	for _, d := range details {
		for k, v := range d.Fields() {
			switch v.(type) {
			case string, bool, int, int64:
			default:
				t.Errorf("%s: field %s has non-scalar value %T", d.Kind(), k, v)
			}
			assert.NotEqual(t, "wrong precinct", v)
		}
	}
}
