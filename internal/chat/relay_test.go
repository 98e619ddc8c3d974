package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"Amoura/internal/event"
	"Amoura/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendRejectsSelfAndEmpty(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000})

	_, err := f.service.Send(context.Background(), "alice", "alice", "hi", "")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.service.Send(context.Background(), "alice", "", "hi", "")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = f.service.Send(context.Background(), "alice", "bob", "", "")
	assert.Equal(t, CodeValidation, CodeOf(err))

	// nothing reached the stores
	f.messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(1000), bal)
}

func TestSendBlockedRejectsBeforeDebit(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000})
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(true, nil)

	_, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	assert.Equal(t, CodeBlocked, CodeOf(err))

	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(1000), bal)
	f.messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestSendInsufficientBalanceRejectsBeforePersist(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 30})
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)

	_, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.Error(t, err)

	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInsufficientBalance, ce.Code)
	assert.Equal(t, int64(100), ce.Required)
	assert.Equal(t, int64(70), ce.Shortfall)

	// the rejected send is not partially applied
	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(30), bal)
	f.messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	f.conversations.AssertNotCalled(t, "UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDebitsTierAndPersists(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000}, "bob")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.AnythingOfType("*model.Message")).
		Return("65a000000000000000000001", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, Key("alice", "bob"), "alice", "bob", "hi", mock.AnythingOfType("time.Time")).
		Return(nil)

	msg, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, Key("alice", "bob"), msg.ConversationKey)
	assert.False(t, msg.Read)

	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(900), bal)

	f.messages.AssertExpectations(t)
	f.conversations.AssertExpectations(t)
}

func TestSendImageTierCost(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 600}, "bob")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000002", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	msg, err := f.service.Send(context.Background(), "alice", "bob", "", "https://cdn.example.com/p.jpg")
	require.NoError(t, err)
	require.NotNil(t, msg.ImageURL)

	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(100), bal)
}

func TestSendFansOutToBothSides(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000}, "alice", "bob")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000003", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	_, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)

	toBob := f.pusher.deliveredTo("bob")
	require.Len(t, toBob, 1)
	assert.Equal(t, event.KindMessageDelivered, toBob[0].Event)

	toAlice := f.pusher.deliveredTo("alice")
	require.Len(t, toAlice, 1)
	assert.Equal(t, event.KindMessageSent, toAlice[0].Event)

	// receiver was live, no push notification
	assert.Empty(t, f.notifier.notified())
}

func TestSendNotifiesWhenReceiverOffline(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000}, "alice")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000004", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	f.users.On("GetUser", mock.Anything, "bob").
		Return(&model.User{UserID: "bob", IsOnline: false}, nil)

	_, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"bob"}, f.notifier.notified())
}

func TestSendSkipsNotifyWhenReceiverOnAnotherInstance(t *testing.T) {
	// no local handle for bob, but the durable record says online:
	// another instance is holding the socket, so no push notification
	f := newServiceFixture(map[string]int64{"alice": 1000}, "alice")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000014", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	f.users.On("GetUser", mock.Anything, "bob").
		Return(&model.User{UserID: "bob", IsOnline: true}, nil)

	_, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)

	assert.Empty(t, f.notifier.notified())
}

func TestSendSurvivesSummaryUpdateFailure(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000}, "bob")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000005", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError)

	// message is durable; a failed summary write degrades the cache only
	msg, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Len(t, f.pusher.deliveredTo("bob"), 1)
}

func TestConcurrentSendsOneWinner(t *testing.T) {
	// balance covers exactly one text send; of two racing sends exactly
	// one debit succeeds and exactly one message persists
	f := newServiceFixture(map[string]int64{"alice": 100}, "bob")
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000006", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Send(context.Background(), "alice", "bob", "race", "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, CodeInsufficientBalance, CodeOf(err))
		rejections++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, rejections)

	bal, _ := f.wallet.GetBalance(context.Background(), "alice")
	assert.Equal(t, int64(0), bal)
	f.messages.AssertNumberOfCalls(t, "Insert", 1)
}

func TestSendUnknownSender(t *testing.T) {
	f := newServiceFixture(map[string]int64{})
	f.blocks.On("ExistsEither", mock.Anything, "ghost", "bob").Return(false, nil)

	_, err := f.service.Send(context.Background(), "ghost", "bob", "hi", "")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestMessageCreatedAtIsUTC(t *testing.T) {
	f := newServiceFixture(map[string]int64{"alice": 1000})
	f.blocks.On("ExistsEither", mock.Anything, "alice", "bob").Return(false, nil)
	f.messages.On("Insert", mock.Anything, mock.Anything).
		Return("65a000000000000000000007", nil)
	f.conversations.On("UpsertOnSend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	f.users.On("GetUser", mock.Anything, "bob").
		Return(&model.User{UserID: "bob", IsOnline: false}, nil)

	before := time.Now().UTC()
	msg, err := f.service.Send(context.Background(), "alice", "bob", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, msg.CreatedAt.Location())
	assert.False(t, msg.CreatedAt.Before(before))
}
