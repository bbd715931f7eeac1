package databases

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/police-blotter-api/models"
)

const auditLogName = "audit_logs"

// AuditLogDatabase is append-only. Entries are never updated or deleted.
type AuditLogDatabase interface {
	Insert(ctx context.Context, entry models.AuditLogEntry) error
	ListByTarget(ctx context.Context, targetID string, limit int64) ([]models.AuditLogEntry, error)
}

type auditLogDatabase struct {
	db DatabaseHelper
}

// NewAuditLogDatabase initializes a new instance of audit log database with the provided db connection
func NewAuditLogDatabase(db DatabaseHelper) AuditLogDatabase {
	return &auditLogDatabase{
		db: db,
	}
}

func (c *auditLogDatabase) Insert(ctx context.Context, entry models.AuditLogEntry) error {
	_, err := c.db.Collection(auditLogName).InsertOne(ctx, entry)
	return translate(err, "insert audit entry")
}

// ListByTarget returns a target's history oldest first
func (c *auditLogDatabase) ListByTarget(ctx context.Context, targetID string, limit int64) ([]models.AuditLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	var entries []models.AuditLogEntry
	curr, err := c.db.Collection(auditLogName).Find(ctx, bson.M{"targetId": targetID}, opts)
	if err != nil {
		return nil, translate(err, "audit entries for "+targetID)
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &entries)
	if err != nil {
		return nil, translate(err, "audit entries for "+targetID)
	}
	return entries, nil
}

// AuditLogIndexes backs ListByTarget
var AuditLogIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "targetId", Value: 1}, {Key: "timestamp", Value: 1}}},
}
