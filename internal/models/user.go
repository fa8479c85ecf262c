package models

import "go.mongodb.org/mongo-driver/bson/primitive"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated caller as asserted by the access token.
type Identity struct {
	ID    primitive.ObjectID
	Role  string
	Email string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess is true for the order's owner and for administrators.
func (i Identity) CanAccess(o Order) bool {
	return i.IsAdmin() || o.OwnedBy(i.ID)
}
