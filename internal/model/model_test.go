package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePreview(t *testing.T) {
	url := "https://cdn.example.com/p.jpg"

	m := Message{Text: "hello"}
	assert.Equal(t, "hello", m.Preview())

	m = Message{ImageURL: &url}
	assert.Equal(t, "[photo]", m.Preview())

	// caption wins over the photo marker
	m = Message{Text: "look", ImageURL: &url}
	assert.Equal(t, "look", m.Preview())
}

func TestMessageVisibleTo(t *testing.T) {
	m := Message{DeletedFor: []string{"alice"}}
	assert.False(t, m.VisibleTo("alice"))
	assert.True(t, m.VisibleTo("bob"))
}

func TestSummaryCounterpart(t *testing.T) {
	s := ConversationSummary{ParticipantA: "alice", ParticipantB: "bob"}
	assert.Equal(t, "bob", s.Counterpart("alice"))
	assert.Equal(t, "alice", s.Counterpart("bob"))
}

func TestSummaryUnreadForNeverNegative(t *testing.T) {
	s := ConversationSummary{Unread: map[string]int64{"alice": -2, "bob": 3}}
	assert.Equal(t, int64(0), s.UnreadFor("alice"))
	assert.Equal(t, int64(3), s.UnreadFor("bob"))
	assert.Equal(t, int64(0), s.UnreadFor("carol"))
}

func TestRelationshipBlocked(t *testing.T) {
	assert.False(t, Relationship{}.Blocked())
	assert.True(t, Relationship{BlockedByMe: true}.Blocked())
	assert.True(t, Relationship{BlockedByThem: true}.Blocked())
}
