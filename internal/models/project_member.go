package models

import (
	"time"
)

// ProjectMember is the join row between a project and one of its users.
// The composite primary key makes membership a set.
type ProjectMember struct {
	ProjectID string    `gorm:"primaryKey;size:24" json:"project_id"`
	UserID    string    `gorm:"primaryKey;size:24;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
