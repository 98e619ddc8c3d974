package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	env := New(KindJoin, JoinPayload{UserID: "alice"})

	decoded, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, JoinPayload{UserID: "alice"}, decoded)
}

func TestDecodeRejectsMissingUserID(t *testing.T) {
	for _, kind := range []Kind{KindJoin, KindLeave, KindPresenceChanged} {
		env := Envelope{Event: kind, Payload: json.RawMessage(`{}`)}
		_, err := env.Decode()
		assert.Error(t, err, string(kind))
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	env := Envelope{Event: "shutdown", Payload: json.RawMessage(`{}`)}

	_, err := env.Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecodeTypingRequiresKeyAndUser(t *testing.T) {
	env := New(KindTyping, TypingPayload{ConversationKey: "alice:bob", UserID: "alice", IsTyping: true})
	decoded, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypingPayload{ConversationKey: "alice:bob", UserID: "alice", IsTyping: true}, decoded)

	env = New(KindTyping, TypingPayload{UserID: "alice"})
	_, err = env.Decode()
	assert.Error(t, err)
}

func TestDecodeMessageRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := MessagePayload{
		ID:              "65a000000000000000000001",
		ConversationKey: "alice:bob",
		SenderID:        "alice",
		ReceiverID:      "bob",
		Text:            "hi",
		CreatedAt:       at,
	}

	for _, kind := range []Kind{KindMessageDelivered, KindMessageSent} {
		decoded, err := New(kind, p).Decode()
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestDecodeMessageIncomplete(t *testing.T) {
	env := New(KindMessageDelivered, MessagePayload{Text: "hi"})
	_, err := env.Decode()
	assert.Error(t, err)
}

func TestDecodeMalformedPayload(t *testing.T) {
	env := Envelope{Event: KindJoin, Payload: json.RawMessage(`{"userId": 42}`)}
	_, err := env.Decode()
	assert.Error(t, err)
}

func TestEnvelopeWireShape(t *testing.T) {
	raw, err := json.Marshal(New(KindLeave, LeavePayload{UserID: "alice"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"leave","payload":{"userId":"alice"}}`, string(raw))
}
