package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB. Presence attributes
// (is_online, last_active) are written back by the hub so that REST
// polling observes the same state as push subscribers.
type User struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID     string             `json:"userId" bson:"user_id"`
	Name       string             `json:"name" bson:"name"`
	Avatar     string             `json:"avatar" bson:"avatar"`
	Color      string             `json:"color" bson:"color"`
	Gender     string             `json:"gender" bson:"gender"`
	Diamonds   int64              `json:"diamonds" bson:"diamonds"`
	IsOnline   bool               `json:"isOnline" bson:"is_online"`
	LastActive time.Time          `json:"lastActive" bson:"last_active"`
	CreatedAt  time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt  *time.Time         `json:"updatedAt" bson:"updated_at"`
}

// Profile is the display decoration attached to chat list entries.
// It is never authoritative for relay decisions.
type Profile struct {
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	Color      string    `json:"color"`
	Gender     string    `json:"gender"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

// PlaceholderProfile is used when the directory lookup fails so that
// list rendering never blocks on profile availability.
func PlaceholderProfile(userID string) Profile {
	return Profile{UserID: userID, Name: "Unknown"}
}
