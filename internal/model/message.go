package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message represents a chat message in MongoDB. Immutable once created
// except for the read flag and deleted_for membership.
type Message struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationKey string             `json:"conversationKey" bson:"conversation_key"`
	SenderID        string             `json:"senderId" bson:"sender_id"`
	ReceiverID      string             `json:"receiverId" bson:"receiver_id"`
	Text            string             `json:"text" bson:"text"`
	ImageURL        *string            `json:"imageUrl,omitempty" bson:"image_url,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
	Read            bool               `json:"read" bson:"read"`
	// DeletedFor holds user ids the message is tombstoned for. A message
	// hidden for one participant stays visible to the other.
	DeletedFor []string `json:"-" bson:"deleted_for"`
}

// IsImage reports whether the message carries an image attachment.
func (m *Message) IsImage() bool {
	return m.ImageURL != nil && *m.ImageURL != ""
}

// Preview returns the text shown in chat list previews.
func (m *Message) Preview() string {
	if m.IsImage() && m.Text == "" {
		return "[photo]"
	}
	return m.Text
}

// VisibleTo reports whether the message is not tombstoned for the user.
func (m *Message) VisibleTo(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return false
		}
	}
	return true
}
