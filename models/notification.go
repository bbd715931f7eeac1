package models

import "time"

// InboxNotification holds the structure for the notifications collection in mongo.
// Documents are addressed by recipient and id.
type InboxNotification struct {
	ID          string                 `json:"id" bson:"_id"`
	RecipientID string                 `json:"recipientId" bson:"recipientId"`
	Title       string                 `json:"title" bson:"title"`
	Body        string                 `json:"body" bson:"body"`
	Data        map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	Delivered   bool                   `json:"delivered" bson:"delivered"`
	Seen        bool                   `json:"seen" bson:"seen"`
	CreatedAt   time.Time              `json:"createdAt" bson:"createdAt"`
}
