package models

import "time"

// OfficerRole is the role of an officer record
type OfficerRole string

// Officer roles
const (
	OfficerRoleOfficer    OfficerRole = "officer"
	OfficerRoleSupervisor OfficerRole = "supervisor"
)

// Valid reports whether r is a known officer role
func (r OfficerRole) Valid() bool {
	return r == OfficerRoleOfficer || r == OfficerRoleSupervisor
}

// OfficerStatus is the duty status of an officer record
type OfficerStatus string

// Officer statuses
const (
	OfficerActive    OfficerStatus = "active"
	OfficerInactive  OfficerStatus = "inactive"
	OfficerSuspended OfficerStatus = "suspended"
)

// Valid reports whether s is a known officer status
func (s OfficerStatus) Valid() bool {
	return s == OfficerActive || s == OfficerInactive || s == OfficerSuspended
}

// Officer holds the structure for the officers collection in mongo
type Officer struct {
	UID            string        `json:"uid" bson:"_id"`
	Name           string        `json:"name" bson:"name"`
	Role           OfficerRole   `json:"role" bson:"role"`
	Status         OfficerStatus `json:"status" bson:"status"`
	JurisdictionID string        `json:"jurisdictionId,omitempty" bson:"jurisdictionId,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updatedAt"`
}
