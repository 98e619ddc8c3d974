package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Amoura/internal/chat"
	"Amoura/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newMessengerFixture(t *testing.T, handler http.HandlerFunc) (*Messenger, *Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL, "test-token", nil)
	session := NewSession(SessionConfig{SocketURL: "ws://unused", UserID: "alice"})
	cache := NewCache("alice", nil)
	return NewMessenger("alice", api, session, cache, nil), cache
}

func TestTimedOutRequestSurfacesDeadlineThroughTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	api := NewAPI(srv.URL, "test-token", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := api.MarkRead(ctx, "bob")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, chat.CodeTransport, chat.CodeOf(err))
}

func TestMessengerSendConfirmsPlaceholder(t *testing.T) {
	oid := primitive.NewObjectID()
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/am/api/chats/send", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["receiverId"])

		json.NewEncoder(w).Encode(map[string]any{"message": model.Message{
			ID:              oid,
			ConversationKey: chat.Key("alice", "bob"),
			SenderID:        "alice",
			ReceiverID:      "bob",
			Text:            body["text"],
			CreatedAt:       time.Now().UTC(),
		}})
	})

	msg, err := m.Send(context.Background(), "bob", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, oid, msg.ID)

	th, ok := cache.Thread(chat.Key("alice", "bob"))
	require.True(t, ok)
	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, oid.Hex(), msgs[0].ID)
	assert.False(t, msgs[0].Pending)
}

func TestMessengerSendRollsBackOnRejection(t *testing.T) {
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": chat.ErrInsufficientBalance(100, 30),
		})
	})

	_, err := m.Send(context.Background(), "bob", "cannot afford this", "")
	require.Error(t, err)

	var failure *SendFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "cannot afford this", failure.Draft)
	assert.Equal(t, chat.CodeInsufficientBalance, chat.CodeOf(failure.Cause))

	ce, ok := chat.AsError(failure.Cause)
	require.True(t, ok)
	assert.Equal(t, int64(70), ce.Shortfall)

	// the placeholder is gone
	th, ok := cache.Thread(chat.Key("alice", "bob"))
	require.True(t, ok)
	assert.Empty(t, th.Messages())
}

func TestMessengerMarkReadZeroesLocallyDespiteServerError(t *testing.T) {
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	cache.ApplyDelivered(deliveredPayload("65a000000000000000000030", "bob", "alice", "hey", time.Now().UTC()))
	require.Equal(t, int64(1), cache.TotalUnread())

	// local mirror zeroes regardless; server truth reconciles on refresh
	m.MarkRead(context.Background(), "bob")
	assert.Equal(t, int64(0), cache.TotalUnread())
}

func TestMessengerDeleteConversationDropsThread(t *testing.T) {
	key := chat.Key("alice", "bob")
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/am/api/chats/by-key/"+key, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	cache.ApplyDelivered(deliveredPayload("65a000000000000000000031", "bob", "alice", "hey", time.Now().UTC()))

	require.NoError(t, m.DeleteConversation(context.Background(), key))
	_, ok := cache.Thread(key)
	assert.False(t, ok)
}

func TestMessengerRefreshOverwritesList(t *testing.T) {
	at := time.Now().UTC()
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/am/api/chats", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"chats": []model.ChatListEntry{
			{
				Key:                chat.Key("alice", "bob"),
				Counterpart:        model.Profile{UserID: "bob", Name: "Bob"},
				LastMessagePreview: "server truth",
				LastMessageAt:      at,
				Unread:             2,
			},
		}})
	})

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, int64(2), cache.TotalUnread())

	threads := cache.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "server truth", threads[0].Preview)
	assert.Equal(t, "Bob", threads[0].Counterpart.Name)
}

func TestMessengerLoadOlderStopsAtConversationStart(t *testing.T) {
	pages := 0
	m, cache := newMessengerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		json.NewEncoder(w).Encode(model.MessagePage{
			Messages: []model.Message{},
			Page:     2,
			HasMore:  false,
		})
	})

	key := chat.Key("alice", "bob")
	cache.LoadPage(key, &model.MessagePage{Messages: []model.Message{}, Page: 1, HasMore: true})

	loaded, err := m.LoadOlder(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 1, pages)

	// hasMore is now false: no further fetch is issued
	loaded, err = m.LoadOlder(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 1, pages)
}
