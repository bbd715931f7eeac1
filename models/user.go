package models

// ActorRole is the role an authenticated caller acts under
type ActorRole string

// Actor roles
const (
	RoleCitizen     ActorRole = "citizen"
	RoleDeskOfficer ActorRole = "desk_officer"
	RoleOfficer     ActorRole = "officer"
	RoleSupervisor  ActorRole = "supervisor"
	RoleAdmin       ActorRole = "admin"
)

// Actor identifies who performs an engine operation
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role"`
}

// IsStaff reports whether the actor is any non-citizen role
func (a Actor) IsStaff() bool {
	return a.Role != RoleCitizen && a.Role != ""
}

// User holds the structure for the users collection in mongo. Only the fields
// needed to authenticate and resolve an actor role are mapped.
type User struct {
	ID       string    `json:"_id" bson:"_id"`
	Email    string    `json:"email" bson:"email"`
	Password string    `json:"-" bson:"password"`
	Role     ActorRole `json:"role" bson:"role"`
	Active   bool      `json:"active" bson:"active"`
}
