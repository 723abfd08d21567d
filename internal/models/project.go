package models

import (
	"time"
)

// Project is a shared workspace: a file tree, its collaborators and their chat.
type Project struct {
	ID        string    `gorm:"primaryKey;size:24" json:"_id"`
	Name      string    `gorm:"uniqueIndex;size:200;not null" json:"name"`
	Admin     UserRef   `gorm:"embedded;embeddedPrefix:admin_" json:"admin"`
	Users     []User    `gorm:"many2many:project_members" json:"users"`
	FileTree  FileTree  `gorm:"serializer:json;type:text" json:"fileTree"`
	Messages  []Message `gorm:"foreignKey:ProjectID" json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// HasMember reports whether userID is in the member set.
func (p *Project) HasMember(userID string) bool {
	for _, u := range p.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID created the project.
func (p *Project) IsAdmin(userID string) bool {
	return p.Admin.ID != "" && p.Admin.ID == userID
}
