package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationSummary is the one-row-per-pair chat list document.
// unread counts are keyed by participant user id; last_message_at is
// monotonically non-decreasing.
type ConversationSummary struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Key                string             `json:"key" bson:"key"`
	ParticipantA       string             `json:"participantA" bson:"participant_a"`
	ParticipantB       string             `json:"participantB" bson:"participant_b"`
	LastMessagePreview string             `json:"lastMessagePreview" bson:"last_message_preview"`
	LastMessageSender  string             `json:"lastMessageSender" bson:"last_message_sender"`
	LastMessageAt      time.Time          `json:"lastMessageAt" bson:"last_message_at"`
	Unread             map[string]int64   `json:"unread" bson:"unread"`
	// DeletedFor mirrors message tombstones at thread granularity: a
	// participant who deleted the conversation does not see it listed
	// until a new message arrives.
	DeletedFor []string  `json:"-" bson:"deleted_for"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
}

// Counterpart returns the other participant of the summary.
func (c *ConversationSummary) Counterpart(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread count for a participant, never negative.
func (c *ConversationSummary) UnreadFor(userID string) int64 {
	n := c.Unread[userID]
	if n < 0 {
		return 0
	}
	return n
}

// HiddenFor reports whether the participant deleted this thread.
func (c *ConversationSummary) HiddenFor(userID string) bool {
	for _, id := range c.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatListEntry is a summary decorated for the chat list screen.
type ChatListEntry struct {
	Key                string    `json:"key"`
	Counterpart        Profile   `json:"counterpart"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageSender  string    `json:"lastMessageSender"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	Unread             int64     `json:"unread"`
	BlockedByMe        bool      `json:"blockedByMe"`
	BlockedByThem      bool      `json:"blockedByThem"`
}

// MessagePage is one backward-paginated slice of a conversation window.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int64     `json:"page"`
	HasMore  bool      `json:"hasMore"`
}
