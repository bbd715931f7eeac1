package models

import "time"

// ReportStatus is the citizen-facing lifecycle state of a report
type ReportStatus string

// Report statuses
const (
	StatusPending    ReportStatus = "pending"
	StatusValidated  ReportStatus = "validated"
	StatusAssigned   ReportStatus = "assigned"
	StatusAccepted   ReportStatus = "accepted"
	StatusResponding ReportStatus = "responding"
	StatusResolved   ReportStatus = "resolved"
	StatusRejected   ReportStatus = "rejected"
)

// IsOpenAssignment reports whether a report in this status counts against the
// assigned officer's workload. An officer is attached iff this is true.
func (s ReportStatus) IsOpenAssignment() bool {
	return s == StatusAssigned || s == StatusAccepted || s == StatusResponding
}

// Valid reports whether s is a known status
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusAssigned, StatusAccepted,
		StatusResponding, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Priority is the report's handling priority
type Priority string

// Priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// TriageLevel is the classification set by the desk officer at validation
type TriageLevel string

// Triage levels
const (
	TriageCritical TriageLevel = "critical"
	TriageHigh     TriageLevel = "high"
	TriageMedium   TriageLevel = "medium"
	TriageLow      TriageLevel = "low"
)

// Valid reports whether t is a known triage level
func (t TriageLevel) Valid() bool {
	switch t {
	case TriageCritical, TriageHigh, TriageMedium, TriageLow:
		return true
	}
	return false
}

// AssignmentStatus tracks the assigned officer's response to an assignment
type AssignmentStatus string

// Assignment statuses
const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAccepted AssignmentStatus = "accepted"
	AssignmentDeclined AssignmentStatus = "declined"
)

// Location is the optional geolocation of a report
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Address   string   `json:"address,omitempty" bson:"address,omitempty"`
}

// Report holds the structure for the reports collection in mongo
type Report struct {
	ID             string    `json:"id" bson:"_id"`
	ReporterID     string    `json:"reporterId" bson:"reporterId"`
	Category       string    `json:"category" bson:"category"`
	Subcategory    string    `json:"subcategory" bson:"subcategory"`
	Description    string    `json:"description" bson:"description"`
	Location       *Location `json:"location,omitempty" bson:"location,omitempty"`
	JurisdictionID string    `json:"jurisdictionId,omitempty" bson:"jurisdictionId,omitempty"`
	MediaRefs      []string  `json:"mediaRefs" bson:"mediaRefs"`

	Status      ReportStatus `json:"status" bson:"status"`
	Priority    Priority     `json:"priority" bson:"priority"`
	TriageLevel TriageLevel  `json:"triageLevel,omitempty" bson:"triageLevel,omitempty"`
	TriageNotes string       `json:"triageNotes,omitempty" bson:"triageNotes,omitempty"`

	// BlotterNumber is issued once at validation and never changes afterwards
	BlotterNumber string `json:"blotterNumber,omitempty" bson:"blotterNumber,omitempty"`

	AssignedOfficerID     string             `json:"assignedOfficerId,omitempty" bson:"assignedOfficerId,omitempty"`
	AssignmentStatus      AssignmentStatus   `json:"assignmentStatus,omitempty" bson:"assignmentStatus,omitempty"`
	AssignedBy            string             `json:"assignedBy,omitempty" bson:"assignedBy,omitempty"`
	LastAssignedOfficerID string             `json:"lastAssignedOfficerId,omitempty" bson:"lastAssignedOfficerId,omitempty"`
	AssignmentHistory     []AssignmentRecord `json:"assignmentHistory,omitempty" bson:"assignmentHistory,omitempty"`

	ResolutionNotes string         `json:"resolutionNotes,omitempty" bson:"resolutionNotes,omitempty"`
	RejectionNotes  string         `json:"rejectionNotes,omitempty" bson:"rejectionNotes,omitempty"`
	ClosureReview   *ClosureReview `json:"closureReview,omitempty" bson:"closureReview,omitempty"`

	OfficerNotes []Note `json:"officerNotes,omitempty" bson:"officerNotes,omitempty"`
	Comments     []Note `json:"comments,omitempty" bson:"comments,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// AssignmentRecord is one closed-out assignment of the report to an officer
type AssignmentRecord struct {
	OfficerID string           `json:"officerId" bson:"officerId"`
	Outcome   AssignmentStatus `json:"outcome" bson:"outcome"`
	Reason    string           `json:"reason,omitempty" bson:"reason,omitempty"`
	ActorID   string           `json:"actorId" bson:"actorId"`
	At        time.Time        `json:"at" bson:"at"`
}

// Closure review decisions
const (
	ClosureApproved = "approved"
	ClosureRejected = "rejected"
)

// ClosureReview records the latest supervisor decision on a resolved report
type ClosureReview struct {
	Decision   string    `json:"decision" bson:"decision"`
	ReviewerID string    `json:"reviewerId" bson:"reviewerId"`
	Reason     string    `json:"reason,omitempty" bson:"reason,omitempty"`
	At         time.Time `json:"at" bson:"at"`
}

// Note is a free-text entry attached to a report (officer note or comment)
type Note struct {
	ID        string    `json:"id" bson:"id"`
	AuthorID  string    `json:"authorId" bson:"authorId"`
	Body      string    `json:"body" bson:"body"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy so callers can mutate the result without touching r
func (r Report) Clone() Report {
	c := r
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.ClosureReview != nil {
		cr := *r.ClosureReview
		c.ClosureReview = &cr
	}
	c.MediaRefs = append([]string(nil), r.MediaRefs...)
	c.AssignmentHistory = append([]AssignmentRecord(nil), r.AssignmentHistory...)
	c.OfficerNotes = append([]Note(nil), r.OfficerNotes...)
	c.Comments = append([]Note(nil), r.Comments...)
	return c
}
