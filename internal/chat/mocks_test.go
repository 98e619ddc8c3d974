package chat

import (
	"context"
	"sync"
	"time"

	"Amoura/internal/event"
	"Amoura/internal/model"
	"Amoura/internal/repo"
	"Amoura/internal/wallet"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockMessageRepository is a mock implementation of repo.MessageRepository.
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockMessageRepository) PageForUser(ctx context.Context, conversationKey, userID string, page int64) (*model.MessagePage, error) {
	args := m.Called(ctx, conversationKey, userID, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessagePage), args.Error(1)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, conversationKey, readerID string) (int64, error) {
	args := m.Called(ctx, conversationKey, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) CountUnread(ctx context.Context, conversationKey, userID string) (int64, error) {
	args := m.Called(ctx, conversationKey, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) TombstoneAll(ctx context.Context, conversationKey, userID string) error {
	args := m.Called(ctx, conversationKey, userID)
	return args.Error(0)
}

// MockConversationRepository is a mock implementation of repo.ConversationRepository.
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) UpsertOnSend(ctx context.Context, key, senderID, receiverID, preview string, at time.Time) error {
	args := m.Called(ctx, key, senderID, receiverID, preview, at)
	return args.Error(0)
}

func (m *MockConversationRepository) FindByKey(ctx context.Context, key string) (*model.ConversationSummary, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationSummary), args.Error(1)
}

func (m *MockConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ConversationSummary), args.Error(1)
}

func (m *MockConversationRepository) ZeroUnread(ctx context.Context, key, userID string) error {
	args := m.Called(ctx, key, userID)
	return args.Error(0)
}

func (m *MockConversationRepository) SetUnread(ctx context.Context, key, userID string, count int64) error {
	args := m.Called(ctx, key, userID, count)
	return args.Error(0)
}

func (m *MockConversationRepository) HideForUser(ctx context.Context, key, userID string) error {
	args := m.Called(ctx, key, userID)
	return args.Error(0)
}

// MockUserRepository is a mock implementation of repo.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Profile), args.Error(1)
}

func (m *MockUserRepository) SetPresence(ctx context.Context, userID string, online bool, lastActive time.Time) error {
	args := m.Called(ctx, userID, online, lastActive)
	return args.Error(0)
}

// MockBlockRepository is a mock implementation of repo.BlockRepository.
type MockBlockRepository struct {
	mock.Mock
}

func (m *MockBlockRepository) Create(ctx context.Context, blockerID, blockedID, reason string) error {
	args := m.Called(ctx, blockerID, blockedID, reason)
	return args.Error(0)
}

func (m *MockBlockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Error(0)
}

func (m *MockBlockRepository) ExistsEither(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlockRepository) Relationship(ctx context.Context, userID, otherID string) (model.Relationship, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Get(0).(model.Relationship), args.Error(1)
}

// fakeWallet is a threadsafe conditional-debit wallet, matching the
// atomicity contract of the Mongo-backed service.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeWallet(balances map[string]int64) *fakeWallet {
	return &fakeWallet{balances: balances}
}

func (w *fakeWallet) GetBalance(ctx context.Context, userID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bal, ok := w.balances[userID]
	if !ok {
		return 0, wallet.ErrUserNotFound
	}
	return bal, nil
}

func (w *fakeWallet) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bal, ok := w.balances[userID]
	if !ok {
		return 0, wallet.ErrUserNotFound
	}
	if bal < amount {
		return 0, wallet.ErrInsufficient
	}
	w.balances[userID] = bal - amount
	return w.balances[userID], nil
}

func (w *fakeWallet) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] += amount
	return w.balances[userID], nil
}

// fakePusher records fan-out without a live hub.
type fakePusher struct {
	mu        sync.Mutex
	online    map[string]bool
	delivered map[string][]event.Envelope
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{
		online:    make(map[string]bool),
		delivered: make(map[string][]event.Envelope),
	}
	for _, u := range online {
		p.online[u] = true
	}
	return p
}

func (p *fakePusher) DeliverToUser(userID string, ev event.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.delivered[userID] = append(p.delivered[userID], ev)
	return true
}

func (p *fakePusher) Broadcast(ev event.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for u := range p.online {
		p.delivered[u] = append(p.delivered[u], ev)
	}
}

func (p *fakePusher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePusher) deliveredTo(userID string) []event.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Envelope(nil), p.delivered[userID]...)
}

// fakeNotifier records notify decisions.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
}

func (n *fakeNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type serviceFixture struct {
	service       *Service
	messages      *MockMessageRepository
	conversations *MockConversationRepository
	users         *MockUserRepository
	blocks        *MockBlockRepository
	wallet        *fakeWallet
	pusher        *fakePusher
	notifier      *fakeNotifier
}

func newServiceFixture(balances map[string]int64, online ...string) *serviceFixture {
	f := &serviceFixture{
		messages:      new(MockMessageRepository),
		conversations: new(MockConversationRepository),
		users:         new(MockUserRepository),
		blocks:        new(MockBlockRepository),
		wallet:        newFakeWallet(balances),
		pusher:        newFakePusher(online...),
		notifier:      &fakeNotifier{},
	}

	logger := zap.NewNop()
	guard := NewGuard(f.blocks, logger)
	f.service = NewService(f.messages, f.conversations, f.users, guard, f.wallet, f.notifier, f.pusher, DefaultCosts, logger)
	return f
}

var _ repo.MessageRepository = (*MockMessageRepository)(nil)
var _ repo.ConversationRepository = (*MockConversationRepository)(nil)
var _ repo.UserRepository = (*MockUserRepository)(nil)
var _ repo.BlockRepository = (*MockBlockRepository)(nil)
var _ wallet.Service = (*fakeWallet)(nil)
