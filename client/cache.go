package client

import (
	"sort"
	"strings"
	"sync"
	"time"

	"Amoura/internal/event"
	"Amoura/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// pendingPrefix makes placeholder ids distinguishable from server
	// object ids, which are plain hex.
	pendingPrefix = "pending-"

	// defaultMaxWindow bounds the in-memory message window per
	// conversation; the oldest end is evicted past it.
	defaultMaxWindow = 1000
)

// CachedMessage is one entry of a conversation window. Pending entries
// are optimistic placeholders awaiting server confirmation.
type CachedMessage struct {
	ID         string
	Pending    bool
	SenderID   string
	ReceiverID string
	Text       string
	ImageURL   string
	CreatedAt  time.Time
	Read       bool
}

// PresenceInfo mirrors the server's presence map. Screens must read
// through the cache accessor, never hold a stale copy.
type PresenceInfo struct {
	IsOnline   bool
	LastActive time.Time
}

// Thread is the cached state of one conversation.
type Thread struct {
	Key           string
	Counterpart   model.Profile
	Preview       string
	LastMessageAt time.Time
	Unread        int64

	window  []CachedMessage // chronological; pending entries interleave at the tail
	page    int64
	hasMore bool
	loaded  bool
}

// Messages returns a copy of the thread window.
func (t *Thread) Messages() []CachedMessage {
	out := make([]CachedMessage, len(t.window))
	copy(out, t.window)
	return out
}

// HasMore reports whether older pages remain on the server.
func (t *Thread) HasMore() bool {
	return t.hasMore
}

// snapshot copies the thread so readers never share the live window
// with the dispatcher.
func (t *Thread) snapshot() *Thread {
	cp := *t
	cp.window = append([]CachedMessage(nil), t.window...)
	return &cp
}

// Cache is the device-side synchronization cache: chat list, message
// windows, presence map and unread mirror. Every mutation funnels
// through its methods behind one mutex; the UI thread and the session
// dispatcher are the only writers.
type Cache struct {
	mu        sync.Mutex
	selfID    string
	threads   map[string]*Thread
	presence  map[string]PresenceInfo
	maxWindow int
	logger    *zap.Logger
}

// NewCache creates a cache for the logged-in user.
func NewCache(selfID string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		selfID:    selfID,
		threads:   make(map[string]*Thread),
		presence:  make(map[string]PresenceInfo),
		maxWindow: defaultMaxWindow,
		logger:    logger,
	}
}

// Threads returns the chat list ordered by last activity, newest
// first. Snapshot copies: the session dispatcher keeps mutating the
// live threads, readers never alias them.
func (c *Cache) Threads() []*Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Thread, 0, len(c.threads))
	for _, t := range c.threads {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// Thread returns a snapshot of one cached conversation, if present.
// Re-fetch after mutations; a snapshot never updates.
func (c *Cache) Thread(key string) (*Thread, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[key]
	if !ok {
		return nil, false
	}
	return t.snapshot(), true
}

// TotalUnread sums the unread mirror across all threads, the app badge
// value.
func (c *Cache) TotalUnread() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, t := range c.threads {
		total += t.Unread
	}
	return total
}

func (c *Cache) ensureThread(key string) *Thread {
	t, ok := c.threads[key]
	if !ok {
		t = &Thread{Key: key}
		c.threads[key] = t
	}
	return t
}

// -----------------------------------------------------------------
// Optimistic send
// -----------------------------------------------------------------

// BeginSend appends a locally-tagged placeholder before the network
// call resolves, so the UI never stalls on the relay round trip.
// Returns the pending id used to roll the placeholder back on failure.
func (c *Cache) BeginSend(key, receiverID, text, imageURL string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	pendingID := pendingPrefix + uuid.New().String()

	t := c.ensureThread(key)
	t.window = append(t.window, CachedMessage{
		ID:         pendingID,
		Pending:    true,
		SenderID:   c.selfID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
		CreatedAt:  now,
	})
	t.Preview = previewOf(text, imageURL)
	t.LastMessageAt = now
	c.evictLocked(t)

	return pendingID
}

// ConfirmSend reconciles a server-confirmed message against the
// placeholder log: the oldest pending entry from this sender is
// replaced in FIFO order. Matching never uses content equality, since
// duplicate text is legal. If no placeholder exists (the send
// originated on another device and arrived as a message-sent push) the
// message is appended instead, deduplicated by server id.
func (c *Cache) ConfirmSend(p event.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.ensureThread(p.ConversationKey)

	if c.containsLocked(t, p.ID) {
		return
	}

	for i := range t.window {
		if t.window[i].Pending && t.window[i].SenderID == p.SenderID {
			t.window[i] = fromPayload(p)
			c.touchLocked(t, p)
			return
		}
	}

	t.window = append(t.window, fromPayload(p))
	c.touchLocked(t, p)
	c.evictLocked(t)
}

// RollbackSend removes a placeholder after a failed send and returns
// its text so the input box can be restored for retry.
func (c *Cache) RollbackSend(key, pendingID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.threads[key]
	if !ok {
		return "", false
	}

	for i := range t.window {
		if t.window[i].ID == pendingID {
			text := t.window[i].Text
			t.window = append(t.window[:i], t.window[i+1:]...)
			c.restorePreviewLocked(t)
			return text, true
		}
	}
	return "", false
}

// -----------------------------------------------------------------
// Remote events
// -----------------------------------------------------------------

// ApplyDelivered handles a message-delivered push for a conversation
// the cache may or may not hold open: the window gets the message if
// loaded, and the list preview, recency and unread fast-path counter
// move without a full refetch. The unread increment is never trusted
// alone; RefreshChatList overwrites it from server truth.
func (c *Cache) ApplyDelivered(p event.MessagePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.ensureThread(p.ConversationKey)
	if c.containsLocked(t, p.ID) {
		return
	}

	if t.loaded {
		t.window = append(t.window, fromPayload(p))
		c.evictLocked(t)
	}
	c.touchLocked(t, p)
	if p.ReceiverID == c.selfID {
		t.Unread++
	}
}

// ApplyPresence updates only the presence map.
func (c *Cache) ApplyPresence(p event.PresencePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[p.UserID] = PresenceInfo{IsOnline: p.IsOnline, LastActive: p.LastActive}
}

// Presence is the read-through accessor for a user's presence.
func (c *Cache) Presence(userID string) (PresenceInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.presence[userID]
	return info, ok
}

// ApplyConversationDeleted drops the thread, mirroring a delete issued
// on another of the user's devices.
func (c *Cache) ApplyConversationDeleted(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, key)
}

// -----------------------------------------------------------------
// Read state
// -----------------------------------------------------------------

// MarkReadLocal zeroes the unread mirror for a thread after the read
// acknowledgment is issued. If the acknowledgment times out server
// side, the next RefreshChatList self-heals.
func (c *Cache) MarkReadLocal(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.threads[key]
	if !ok {
		return
	}
	t.Unread = 0
	for i := range t.window {
		if t.window[i].ReceiverID == c.selfID {
			t.window[i].Read = true
		}
	}
}

// -----------------------------------------------------------------
// Pagination
// -----------------------------------------------------------------

// LoadPage applies one fetched page. Page 1 replaces the window (fresh
// open or refetch after reconnect); higher pages prepend older
// messages, keeping what is already loaded. The hard window cap evicts
// from the oldest end.
func (c *Cache) LoadPage(key string, page *model.MessagePage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.ensureThread(key)

	incoming := make([]CachedMessage, 0, len(page.Messages))
	for i := range page.Messages {
		m := &page.Messages[i]
		if c.containsLocked(t, m.ID.Hex()) {
			continue
		}
		cm := CachedMessage{
			ID:         m.ID.Hex(),
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
			Read:       m.Read,
		}
		if m.ImageURL != nil {
			cm.ImageURL = *m.ImageURL
		}
		incoming = append(incoming, cm)
	}

	if page.Page == 1 && !t.loaded {
		t.window = incoming
	} else {
		t.window = append(incoming, t.window...)
	}
	t.loaded = true
	t.page = page.Page
	t.hasMore = page.HasMore
	c.evictLocked(t)
}

// -----------------------------------------------------------------
// Authoritative refresh
// -----------------------------------------------------------------

// RefreshChatList replaces the thread list metadata from a full server
// fetch. Unread counts here come recomputed from message state, so any
// drift the push fast path accumulated is overwritten. Threads absent
// from the server list (deleted elsewhere) are dropped; loaded message
// windows of surviving threads are kept.
func (c *Cache) RefreshChatList(entries []model.ChatListEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		e := &entries[i]
		seen[e.Key] = struct{}{}

		t := c.ensureThread(e.Key)
		t.Counterpart = e.Counterpart
		t.Preview = e.LastMessagePreview
		t.LastMessageAt = e.LastMessageAt
		t.Unread = e.Unread
		c.presence[e.Counterpart.UserID] = PresenceInfo{
			IsOnline:   e.Counterpart.IsOnline,
			LastActive: e.Counterpart.LastActive,
		}
	}

	for key := range c.threads {
		if _, ok := seen[key]; !ok {
			delete(c.threads, key)
		}
	}
}

// -----------------------------------------------------------------
// Internal helpers (callers hold c.mu)
// -----------------------------------------------------------------

func (c *Cache) containsLocked(t *Thread, id string) bool {
	for i := range t.window {
		if t.window[i].ID == id {
			return true
		}
	}
	return false
}

func (c *Cache) touchLocked(t *Thread, p event.MessagePayload) {
	t.Preview = previewOf(p.Text, p.ImageURL)
	if p.CreatedAt.After(t.LastMessageAt) {
		t.LastMessageAt = p.CreatedAt
	}
}

func (c *Cache) evictLocked(t *Thread) {
	if len(t.window) > c.maxWindow {
		overflow := len(t.window) - c.maxWindow
		t.window = append([]CachedMessage(nil), t.window[overflow:]...)
		c.logger.Debug("window capped",
			zap.String("key", t.Key),
			zap.Int("evicted", overflow),
		)
	}
}

func (c *Cache) restorePreviewLocked(t *Thread) {
	if len(t.window) == 0 {
		t.Preview = ""
		return
	}
	last := t.window[len(t.window)-1]
	t.Preview = previewOf(last.Text, last.ImageURL)
	t.LastMessageAt = last.CreatedAt
}

func fromPayload(p event.MessagePayload) CachedMessage {
	return CachedMessage{
		ID:         p.ID,
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
		ImageURL:   p.ImageURL,
		CreatedAt:  p.CreatedAt,
	}
}

func previewOf(text, imageURL string) string {
	if text == "" && imageURL != "" {
		return "[photo]"
	}
	return text
}

// IsPendingID reports whether a message id names a local placeholder.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, pendingPrefix)
}
