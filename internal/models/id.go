package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a new 24 character hex identifier. Both stores use the same
// format so ids stay valid when switching drivers.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether id is a well-formed identifier.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}
