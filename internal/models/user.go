package models

import (
	"time"
)

// User represents a registered account
type User struct {
	ID        string    `gorm:"primaryKey;size:24" json:"_id" bson:"_id"`
	Name      string    `gorm:"size:100" json:"name" bson:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email" bson:"email"`
	Password  string    `gorm:"size:255" json:"-" bson:"password"`                      // bcrypt hash, empty for LDAP users
	AuthType  string    `gorm:"size:20;default:local" json:"auth_type" bson:"auth_type"` // local, ldap
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (User) TableName() string { return "users" }

// Ref returns the denormalized snapshot stored on projects and messages.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserRef is a denormalized user snapshot.
type UserRef struct {
	ID    string `gorm:"size:24" json:"_id" bson:"_id"`
	Name  string `gorm:"size:100" json:"name,omitempty" bson:"name,omitempty"`
	Email string `gorm:"size:255" json:"email,omitempty" bson:"email,omitempty"`
}
