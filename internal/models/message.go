package models

import "time"

// Message is one entry of a project's append-only chat log.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"-" bson:"-"`
	ProjectID string    `gorm:"index;size:24;not null" json:"-" bson:"-"`
	Sender    UserRef   `gorm:"embedded;embeddedPrefix:sender_" json:"sender" bson:"sender"`
	Text      string    `gorm:"type:text" json:"message" bson:"message"`
	Timestamp time.Time `gorm:"index" json:"timestamp" bson:"timestamp"`
}

func (Message) TableName() string { return "project_messages" }
