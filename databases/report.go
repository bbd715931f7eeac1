package databases

// go generate: mockery --name ReportDatabase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-blotter-api/models"
)

const reportName = "reports"

// ReportDatabase contains the methods to use with the report database
type ReportDatabase interface {
	Get(ctx context.Context, id string) (models.Report, error)
	Replace(ctx context.Context, expectedVersion int64, report models.Report) error
	ListByOfficers(ctx context.Context, officerIDs []string) ([]models.Report, error)
	Insert(ctx context.Context, report models.Report) error
}

type reportDatabase struct {
	db DatabaseHelper
}

// NewReportDatabase initializes a new instance of report database with the provided db connection
func NewReportDatabase(db DatabaseHelper) ReportDatabase {
	return &reportDatabase{
		db: db,
	}
}

func (c *reportDatabase) Get(ctx context.Context, id string) (models.Report, error) {
	report := models.Report{}
	err := c.db.Collection(reportName).FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err != nil {
		return models.Report{}, translate(err, "report "+id)
	}
	return report, nil
}

// Replace writes the whole report only if the stored version still equals
// expectedVersion. The filter and write are one single-document operation.
func (c *reportDatabase) Replace(ctx context.Context, expectedVersion int64, report models.Report) error {
	res, err := c.db.Collection(reportName).ReplaceOne(ctx, bson.M{"_id": report.ID, "version": expectedVersion}, report)
	if err != nil {
		return translate(err, "report "+report.ID)
	}
	if res.MatchedCount == 0 {
		// either the report is gone or someone else wrote first
		if _, getErr := c.Get(ctx, report.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: report %s is no longer at version %d", models.ErrConflict, report.ID, expectedVersion)
	}
	return nil
}

// ListByOfficers returns every report currently or last held by one of officerIDs
func (c *reportDatabase) ListByOfficers(ctx context.Context, officerIDs []string) ([]models.Report, error) {
	if len(officerIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"assignedOfficerId": bson.M{"$in": officerIDs}},
		bson.M{"lastAssignedOfficerId": bson.M{"$in": officerIDs}},
	}}
	var reports []models.Report
	curr, err := c.db.Collection(reportName).Find(ctx, filter)
	if err != nil {
		return nil, translate(err, "reports by officer")
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &reports)
	if err != nil {
		return nil, translate(err, "reports by officer")
	}
	return reports, nil
}

func (c *reportDatabase) Insert(ctx context.Context, report models.Report) error {
	_, err := c.db.Collection(reportName).InsertOne(ctx, report)
	return translate(err, "insert report "+report.ID)
}

// ReportIndexes backs the workload query used by the picker
var ReportIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "assignedOfficerId", Value: 1}}},
	{Keys: bson.D{{Key: "lastAssignedOfficerId", Value: 1}}},
}
