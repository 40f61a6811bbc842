// Package models defines the records persisted by the stores.
package models

import "time"

// Account is a user known to the session store. Its ID doubles as the
// identity token a client presents when it opens a socket.
type Account struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room is a shared canvas. ID is immutable once assigned and Slug is unique.
type Room struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	AdminID   string    `gorm:"index;not null" json:"adminId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is one persisted operation in a room. Message is opaque to the
// server; drawing clients put a JSON shape envelope in it.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id" bson:"_id"`
	RoomID    uint      `gorm:"index;not null" json:"roomId" bson:"room_id"`
	UserID    string    `gorm:"not null" json:"userId" bson:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message" bson:"message"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// TableName keeps the table name stable regardless of gorm's pluralisation.
func (ChatMessage) TableName() string { return "chats" }
