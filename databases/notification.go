package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

const notificationName = "notifications"

// NotificationDatabase holds recipient inboxes and implements notify.Store
type NotificationDatabase interface {
	Insert(ctx context.Context, n models.InboxNotification) error
	List(ctx context.Context, recipientID string, limit int64) ([]models.InboxNotification, error)
	MarkDelivered(ctx context.Context, recipientID, id string) error
	MarkSeen(ctx context.Context, recipientID, id string) error
	Watch(ctx context.Context, recipientID string) (<-chan models.InboxNotification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationDatabase struct {
	db DatabaseHelper
}

// NewNotificationDatabase initializes a new instance of notification database with the provided db connection
func NewNotificationDatabase(db DatabaseHelper) NotificationDatabase {
	return &notificationDatabase{
		db: db,
	}
}

func (c *notificationDatabase) Insert(ctx context.Context, n models.InboxNotification) error {
	_, err := c.db.Collection(notificationName).InsertOne(ctx, n)
	return translate(err, "insert notification for "+n.RecipientID)
}

// List returns the recipient's inbox in creation order
func (c *notificationDatabase) List(ctx context.Context, recipientID string, limit int64) ([]models.InboxNotification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	var inbox []models.InboxNotification
	curr, err := c.db.Collection(notificationName).Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, translate(err, "inbox "+recipientID)
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &inbox)
	if err != nil {
		return nil, translate(err, "inbox "+recipientID)
	}
	return inbox, nil
}

func (c *notificationDatabase) MarkDelivered(ctx context.Context, recipientID, id string) error {
	return c.set(ctx, recipientID, id, "delivered")
}

func (c *notificationDatabase) MarkSeen(ctx context.Context, recipientID, id string) error {
	return c.set(ctx, recipientID, id, "seen")
}

func (c *notificationDatabase) set(ctx context.Context, recipientID, id, flag string) error {
	res, err := c.db.Collection(notificationName).UpdateOne(ctx,
		bson.M{"_id": id, "recipientId": recipientID},
		bson.M{"$set": bson.M{flag: true}})
	if err != nil {
		return translate(err, "notification "+id)
	}
	if res.MatchedCount == 0 {
		return translate(mongo.ErrNoDocuments, "notification "+id)
	}
	return nil
}

// Watch streams inserts into the recipient's inbox until ctx is cancelled.
// It needs a replica set; standalone servers fail the Watch call.
func (c *notificationDatabase) Watch(ctx context.Context, recipientID string) (<-chan models.InboxNotification, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{
		"operationType":            "insert",
		"fullDocument.recipientId": recipientID,
	}}}}
	stream, err := c.db.Collection(notificationName).Watch(ctx, pipeline)
	if err != nil {
		return nil, translate(err, "watch inbox "+recipientID)
	}

	out := make(chan models.InboxNotification)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var event struct {
				FullDocument models.InboxNotification `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				zap.S().Warnw("failed to decode inbox change event",
					"recipientId", recipientID,
					"error", err)
				continue
			}
			select {
			case out <- event.FullDocument:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			zap.S().Errorw("inbox change stream ended",
				"recipientId", recipientID,
				"error", err)
		}
	}()
	return out, nil
}

func (c *notificationDatabase) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := c.db.Collection(notificationName).DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, translate(err, "sweep notifications")
	}
	return n, nil
}

// NotificationIndexes backs inbox listing and the retention sweep
var NotificationIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "_id", Value: 1}}},
	{Keys: bson.D{{Key: "createdAt", Value: 1}}},
}
