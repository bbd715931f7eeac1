package models

import "time"

// SequenceCounter holds the structure for the counters collection in mongo.
// One document exists per period key (YYYY-MM).
type SequenceCounter struct {
	PeriodKey  string    `json:"periodKey" bson:"_id"`
	Year       int       `json:"year" bson:"year"`
	Month      int       `json:"month" bson:"month"`
	LastNumber int64     `json:"lastNumber" bson:"lastNumber"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}
