package models

import "time"

// PushToken holds the structure for the pushtokens collection in mongo.
// A user may register one token per device.
type PushToken struct {
	Token     string    `json:"token" bson:"_id"` // Expo push token (e.g., "ExponentPushToken[xxx]")
	UserID    string    `json:"userId" bson:"userId"`
	Platform  string    `json:"platform" bson:"platform"` // "ios" or "android"
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
