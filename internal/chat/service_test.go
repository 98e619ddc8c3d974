package chat

import (
	"context"
	"testing"

	"Amoura/internal/event"
	"Amoura/internal/model"
	"Amoura/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDeleteConversationTombstonesForCallerOnly(t *testing.T) {
	f := newServiceFixture(nil, "alice")
	key := Key("alice", "bob")
	f.conversations.On("FindByKey", mock.Anything, key).
		Return(&model.ConversationSummary{Key: key, ParticipantA: "alice", ParticipantB: "bob"}, nil)
	f.messages.On("TombstoneAll", mock.Anything, key, "alice").Return(nil)
	f.conversations.On("HideForUser", mock.Anything, key, "alice").Return(nil)

	err := f.service.DeleteConversation(context.Background(), "alice", key)
	require.NoError(t, err)

	// the caller's other devices learn without a refetch
	pushed := f.pusher.deliveredTo("alice")
	require.Len(t, pushed, 1)
	assert.Equal(t, event.KindConversationDeleted, pushed[0].Event)

	f.messages.AssertExpectations(t)
	f.conversations.AssertExpectations(t)
}

func TestDeleteConversationRejectsNonParticipant(t *testing.T) {
	f := newServiceFixture(nil)
	key := Key("bob", "carol")

	err := f.service.DeleteConversation(context.Background(), "alice", key)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	f.messages.AssertNotCalled(t, "TombstoneAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteConversationUnknownKey(t *testing.T) {
	f := newServiceFixture(nil)
	key := Key("alice", "bob")
	f.conversations.On("FindByKey", mock.Anything, key).
		Return(nil, repo.ErrConversationNotFound)

	err := f.service.DeleteConversation(context.Background(), "alice", key)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestConversationPageClamp(t *testing.T) {
	f := newServiceFixture(nil)
	key := Key("alice", "bob")
	f.messages.On("PageForUser", mock.Anything, key, "alice", int64(1)).
		Return(&model.MessagePage{Messages: []model.Message{}, Page: 1}, nil)

	// page 0 and negatives clamp to the newest slice
	page, err := f.service.Conversation(context.Background(), "alice", "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Page)
}

func TestConversationWithSelf(t *testing.T) {
	f := newServiceFixture(nil)
	_, err := f.service.Conversation(context.Background(), "alice", "alice", 1)
	assert.Equal(t, CodeValidation, CodeOf(err))
}
