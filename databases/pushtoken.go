package databases

// go generate: mockery --name PushTokenDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/police-blotter-api/models"
)

const pushTokenCollectionName = "pushtokens"

// PushTokenDatabase contains the methods to use with the push token database
type PushTokenDatabase interface {
	Register(ctx context.Context, token models.PushToken) error
	TokensFor(ctx context.Context, userID string) ([]string, error)
	Remove(ctx context.Context, userID, token string) error
}

type pushTokenDatabase struct {
	db DatabaseHelper
}

// NewPushTokenDatabase initializes a new instance of push token database with the provided db connection
func NewPushTokenDatabase(db DatabaseHelper) PushTokenDatabase {
	return &pushTokenDatabase{
		db: db,
	}
}

// Register upserts by token so a device moving between users follows its latest owner
func (pt *pushTokenDatabase) Register(ctx context.Context, token models.PushToken) error {
	_, err := pt.db.Collection(pushTokenCollectionName).UpdateOne(ctx,
		bson.M{"_id": token.Token},
		bson.M{
			"$set": bson.M{
				"userId":    token.UserID,
				"platform":  token.Platform,
				"updatedAt": token.UpdatedAt,
			},
			"$setOnInsert": bson.M{"createdAt": token.CreatedAt},
		},
		options.Update().SetUpsert(true))
	return translate(err, "register push token for "+token.UserID)
}

func (pt *pushTokenDatabase) TokensFor(ctx context.Context, userID string) ([]string, error) {
	var tokens []models.PushToken
	cur, err := pt.db.Collection(pushTokenCollectionName).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, translate(err, "push tokens for "+userID)
	}
	defer cur.Close(ctx)
	err = cur.All(ctx, &tokens)
	if err != nil {
		return nil, translate(err, "push tokens for "+userID)
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Token)
	}
	return out, nil
}

func (pt *pushTokenDatabase) Remove(ctx context.Context, userID, token string) error {
	_, err := pt.db.Collection(pushTokenCollectionName).DeleteMany(ctx, bson.M{"_id": token, "userId": userID})
	return translate(err, "remove push token for "+userID)
}
