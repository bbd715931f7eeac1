package workflow

import (
	"context"

	"github.com/linesmerrill/police-blotter-api/models"
)

// ReportStore persists reports. Replace is a single-document write that only
// succeeds while the stored version still equals expectedVersion; otherwise it
// returns models.ErrConflict.
type ReportStore interface {
	Get(ctx context.Context, id string) (models.Report, error)
	Replace(ctx context.Context, expectedVersion int64, report models.Report) error
	ListByOfficers(ctx context.Context, officerIDs []string) ([]models.Report, error)
	Insert(ctx context.Context, report models.Report) error
}

// OfficerStore persists officer records
type OfficerStore interface {
	Get(ctx context.Context, uid string) (models.Officer, error)
	ListActive(ctx context.Context) ([]models.Officer, error)
	Update(ctx context.Context, officer models.Officer) error
}

// Numberer issues blotter numbers for the current period. Release hands back
// a number whose report write definitely failed; it fails once a later number
// has been issued.
type Numberer interface {
	Next(ctx context.Context) (string, error)
	Release(ctx context.Context, number string) error
}

// Transactor runs fn so that every store write made with its ctx commits, or
// none does
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor records audit entries
type Auditor interface {
	Record(ctx context.Context, actorID string, action models.AuditAction, targetType, targetID string, details models.AuditDetails) error
}

// Notifier queues inbox notifications
type Notifier interface {
	Send(ctx context.Context, recipientID, title, body string, data map[string]interface{}) (string, error)
}
