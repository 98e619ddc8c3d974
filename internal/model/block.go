package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BlockRelationship is a directional block record, unique per ordered
// pair. Either direction existing suppresses relay both ways.
type BlockRelationship struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	BlockerID string             `json:"blockerId" bson:"blocker_id"`
	BlockedID string             `json:"blockedId" bson:"blocked_id"`
	Reason    string             `json:"reason" bson:"reason"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
}

// Relationship describes the block state between the caller and a
// counterpart, for list relabeling.
type Relationship struct {
	BlockedByMe   bool `json:"blockedByMe"`
	BlockedByThem bool `json:"blockedByThem"`
}

// Blocked reports whether delivery is suppressed in either direction.
func (r Relationship) Blocked() bool {
	return r.BlockedByMe || r.BlockedByThem
}
