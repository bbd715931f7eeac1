// Package audit records every mutating action to the append-only audit log.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// Store is the append-only persistence port for audit entries
type Store interface {
	Insert(ctx context.Context, entry models.AuditLogEntry) error
}

// Log records audit entries. A failed Record never rolls back the mutation that
// triggered it; callers log the error and report it as an effect outcome.
type Log struct {
	Store  Store
	Now    func() time.Time
	NewID  func() string
	Logger *zap.SugaredLogger
}

// New returns a Log writing to store
func New(store Store) *Log {
	return &Log{Store: store}
}

// Record appends one entry
func (l *Log) Record(ctx context.Context, actorID string, action models.AuditAction, targetType, targetID string, details models.AuditDetails) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown audit action %q", models.ErrInvalidField, action)
	}
	if actorID == "" || targetID == "" {
		return fmt.Errorf("%w: audit entry needs actor and target", models.ErrMissingRequiredField)
	}

	fields := map[string]interface{}{}
	if details != nil {
		fields = details.Fields()
	}
	entry := models.AuditLogEntry{
		ID:         l.newID(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    fields,
		Timestamp:  l.now(),
	}
	if err := l.Store.Insert(ctx, entry); err != nil {
		l.logger().Errorw("failed to record audit entry",
			"action", action,
			"targetId", targetID,
			"error", err)
		return fmt.Errorf("%w: audit %s: %v", models.ErrEffectFailure, action, err)
	}
	return nil
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Log) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.New().String()
}

func (l *Log) logger() *zap.SugaredLogger {
	if l.Logger != nil {
		return l.Logger
	}
	return zap.S()
}
