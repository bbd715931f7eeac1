package databases

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/police-blotter-api/models"
)

const counterName = "counters"

// CounterDatabase stores one sequence document per blotter period and
// implements the compare-and-set port used by blotter.Counter
type CounterDatabase interface {
	Load(ctx context.Context, periodKey string) (*models.SequenceCounter, error)
	Swap(ctx context.Context, prev *models.SequenceCounter, next models.SequenceCounter) (bool, error)
}

type counterDatabase struct {
	db DatabaseHelper
}

// NewCounterDatabase initializes a new instance of counter database with the provided db connection
func NewCounterDatabase(db DatabaseHelper) CounterDatabase {
	return &counterDatabase{
		db: db,
	}
}

// Load returns nil without error when the period has no document yet
func (c *counterDatabase) Load(ctx context.Context, periodKey string) (*models.SequenceCounter, error) {
	counter := &models.SequenceCounter{}
	err := c.db.Collection(counterName).FindOne(ctx, bson.M{"_id": periodKey}).Decode(counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "counter "+periodKey)
	}
	return counter, nil
}

// Swap inserts the first document of a period, or updates an existing one only
// while it still holds prev's value. Losing either race reports false.
func (c *counterDatabase) Swap(ctx context.Context, prev *models.SequenceCounter, next models.SequenceCounter) (bool, error) {
	coll := c.db.Collection(counterName)
	if prev == nil {
		_, err := coll.InsertOne(ctx, next)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, translate(err, "counter "+next.PeriodKey)
		}
		return true, nil
	}

	filter := bson.M{
		"_id":        prev.PeriodKey,
		"year":       prev.Year,
		"month":      prev.Month,
		"lastNumber": prev.LastNumber,
	}
	update := bson.M{"$set": bson.M{
		"year":       next.Year,
		"month":      next.Month,
		"lastNumber": next.LastNumber,
		"updatedAt":  next.UpdatedAt,
	}}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, translate(err, "counter "+prev.PeriodKey)
	}
	return res.ModifiedCount == 1, nil
}
