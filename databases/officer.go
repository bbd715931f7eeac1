package databases

// go generate: mockery --name OfficerDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-blotter-api/models"
)

const officerName = "officers"

// OfficerDatabase contains the methods to use with the officer database
type OfficerDatabase interface {
	Get(ctx context.Context, uid string) (models.Officer, error)
	ListActive(ctx context.Context) ([]models.Officer, error)
	Update(ctx context.Context, officer models.Officer) error
}

type officerDatabase struct {
	db DatabaseHelper
}

// NewOfficerDatabase initializes a new instance of officer database with the provided db connection
func NewOfficerDatabase(db DatabaseHelper) OfficerDatabase {
	return &officerDatabase{
		db: db,
	}
}

func (c *officerDatabase) Get(ctx context.Context, uid string) (models.Officer, error) {
	officer := models.Officer{}
	err := c.db.Collection(officerName).FindOne(ctx, bson.M{"_id": uid}).Decode(&officer)
	if err != nil {
		return models.Officer{}, translate(err, "officer "+uid)
	}
	return officer, nil
}

// ListActive returns the assignable pool, role "officer" with status "active"
func (c *officerDatabase) ListActive(ctx context.Context) ([]models.Officer, error) {
	var officers []models.Officer
	filter := bson.M{"status": models.OfficerActive, "role": models.OfficerRoleOfficer}
	curr, err := c.db.Collection(officerName).Find(ctx, filter)
	if err != nil {
		return nil, translate(err, "active officers")
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &officers)
	if err != nil {
		return nil, translate(err, "active officers")
	}
	return officers, nil
}

// Update sets the mutable officer fields
func (c *officerDatabase) Update(ctx context.Context, officer models.Officer) error {
	res, err := c.db.Collection(officerName).UpdateOne(ctx, bson.M{"_id": officer.UID}, bson.M{"$set": bson.M{
		"role":      officer.Role,
		"status":    officer.Status,
		"updatedAt": officer.UpdatedAt,
	}})
	if err != nil {
		return translate(err, "officer "+officer.UID)
	}
	if res.MatchedCount == 0 {
		return translate(mongo.ErrNoDocuments, "officer "+officer.UID)
	}
	return nil
}
