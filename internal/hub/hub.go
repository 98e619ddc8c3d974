package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"Amoura/internal/chat"
	"Amoura/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const fanoutChannel = "amoura:fanout"

// PresenceStore persists online/offline flips so REST polling observes
// the same presence as push subscribers.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, lastActive time.Time) error
}

type inboundEvent struct {
	envelope event.Envelope
	client   *Client
}

// fanoutFrame is the cross-instance envelope published on Redis. An
// empty Target means broadcast.
type fanoutFrame struct {
	Origin   string         `json:"origin"`
	Target   string         `json:"target,omitempty"`
	Envelope event.Envelope `json:"envelope"`
}

// Hub is the presence registry and fan-out path. It tracks every live
// handle per user id; a user is online while at least one joined
// handle exists. With a Redis client attached, directed and broadcast
// events also reach handles held by peer instances.
type Hub struct {
	instanceID string

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	clients   map[string]map[string]*Client // user id -> client id -> handle
	clientsMu sync.RWMutex

	presence PresenceStore
	redis    *redis.Client
	logger   *zap.Logger

	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewHub builds the hub and starts its manager loop and worker pool.
// redisClient may be nil for single-node deployments.
func NewHub(presence PresenceStore, redisClient *redis.Client, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		instanceID: uuid.New().String(),
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundEvent, 4096),
		clients:    make(map[string]map[string]*Client),
		presence:   presence,
		redis:      redisClient,
		logger:     logger,
		startedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}

	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.envelope, in.client)
				}
			}
		}()
	}

	if h.redis != nil {
		go h.subscribeFanout()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	handles, ok := h.clients[c.userID]
	if !ok {
		handles = make(map[string]*Client)
		h.clients[c.userID] = handles
	}
	handles[c.ID] = c
}

func (h *Hub) removeClient(c *Client) {
	h.clientsMu.Lock()
	if handles, ok := h.clients[c.userID]; ok {
		delete(handles, c.ID)
		if len(handles) == 0 {
			delete(h.clients, c.userID)
		}
	}
	lastJoined := c.isJoined() && h.joinedCountLocked(c.userID) == 0
	h.clientsMu.Unlock()

	c.Close()

	if lastJoined {
		h.setOffline(c.userID)
	}

	h.logger.Info("client removed",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.userID),
	)
}

// joinedCountLocked counts joined handles for a user. Callers hold
// clientsMu in at least read mode.
func (h *Hub) joinedCountLocked(userID string) int {
	n := 0
	for _, c := range h.clients[userID] {
		if c.isJoined() {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------
// Inbound event handling
// -----------------------------------------------------------------

func (h *Hub) handleEvent(ev event.Envelope, c *Client) {
	payload, err := ev.Decode()
	if err != nil {
		h.logger.Warn("rejected inbound event",
			zap.String("client_id", c.ID),
			zap.Error(err),
		)
		c.SafeSend(event.New(event.KindError, event.ErrorPayload{
			Code:    string(chat.CodeValidation),
			Message: "malformed event",
		}), sendTimeout)
		return
	}

	switch p := payload.(type) {
	case event.JoinPayload:
		h.handleJoin(c, p)
	case event.LeavePayload:
		h.handleLeave(c, p)
	case event.TypingPayload:
		h.handleTyping(c, p)
	default:
		h.logger.Debug("ignoring inbound event",
			zap.String("event", string(ev.Event)),
			zap.String("client_id", c.ID),
		)
	}
}

// handleJoin counts the handle toward presence. The session manager
// re-emits join after every reconnect, so this also restores presence
// that a dropped connection tore down.
func (h *Hub) handleJoin(c *Client, p event.JoinPayload) {
	if p.UserID != c.userID {
		h.logger.Warn("join user mismatch",
			zap.String("client_id", c.ID),
			zap.String("claimed", p.UserID),
		)
		return
	}
	// mark and count under the registry lock: two devices joining at
	// once must agree on which handle was first
	h.clientsMu.Lock()
	if !c.markJoined() {
		h.clientsMu.Unlock()
		return // duplicate join on the same handle
	}
	first := h.joinedCountLocked(c.userID) == 1
	h.clientsMu.Unlock()

	if first {
		h.setOnline(c.userID)
	}
}

// handleLeave is the explicit set-offline at logout: presence must not
// rely solely on the read deadline reaper.
func (h *Hub) handleLeave(c *Client, p event.LeavePayload) {
	if p.UserID != c.userID {
		return
	}

	h.clientsMu.Lock()
	if !c.isJoined() {
		h.clientsMu.Unlock()
		return
	}
	c.joinedMu.Lock()
	c.joined = false
	c.joinedMu.Unlock()
	last := h.joinedCountLocked(c.userID) == 0
	h.clientsMu.Unlock()

	if last {
		h.setOffline(c.userID)
	}
}

// handleTyping relays the indicator to the conversation counterpart.
// Never persisted.
func (h *Hub) handleTyping(c *Client, p event.TypingPayload) {
	if p.UserID != c.userID || !chat.HasParticipant(p.ConversationKey, c.userID) {
		return
	}

	a, b, ok := chat.Participants(p.ConversationKey)
	if !ok {
		return
	}
	other := a
	if other == c.userID {
		other = b
	}
	h.DeliverToUser(other, event.New(event.KindTyping, p))
}

// -----------------------------------------------------------------
// Presence flips
// -----------------------------------------------------------------

func (h *Hub) setOnline(userID string) {
	now := time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.SetPresence(ctx, userID, true, now); err != nil {
		h.logger.Error("persist online failed", zap.String("user_id", userID), zap.Error(err))
	}

	h.logger.Info("user online", zap.String("user_id", userID))
	h.Broadcast(event.New(event.KindPresenceChanged, event.PresencePayload{
		UserID:     userID,
		IsOnline:   true,
		LastActive: now,
	}))
}

func (h *Hub) setOffline(userID string) {
	now := time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.SetPresence(ctx, userID, false, now); err != nil {
		h.logger.Error("persist offline failed", zap.String("user_id", userID), zap.Error(err))
	}

	h.logger.Info("user offline", zap.String("user_id", userID))
	h.Broadcast(event.New(event.KindPresenceChanged, event.PresencePayload{
		UserID:     userID,
		IsOnline:   false,
		LastActive: now,
	}))
}

// -----------------------------------------------------------------
// Fan-out
// -----------------------------------------------------------------

// IsOnline reports whether the user holds at least one joined handle
// on this instance.
func (h *Hub) IsOnline(userID string) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return h.joinedCountLocked(userID) > 0
}

// DeliverToUser pushes an event to every joined handle of one user, in
// enqueue order per handle. Returns true if at least one local handle
// accepted it. With Redis attached the event also reaches the user's
// handles on peer instances.
func (h *Hub) DeliverToUser(userID string, ev event.Envelope) bool {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		if c.isJoined() {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	delivered := false
	for _, c := range targets {
		if c.SafeSend(ev, sendTimeout) {
			delivered = true
		} else if !c.IsClosed() {
			h.logger.Warn("egress full, unregistering client", zap.String("client_id", c.ID))
			select {
			case h.unregister <- c:
			case <-time.After(unregisterTimeout):
			}
		}
	}

	h.publishFanout(fanoutFrame{Origin: h.instanceID, Target: userID, Envelope: ev})
	return delivered
}

// Broadcast pushes an event to every joined handle on this instance
// and, via Redis, on every peer. Presence changes go to all connected
// peers so any open chat list can update its status dots.
func (h *Hub) Broadcast(ev event.Envelope) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, handles := range h.clients {
		for _, c := range handles {
			if c.isJoined() {
				targets = append(targets, c)
			}
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.SafeSend(ev, sendTimeout)
	}

	h.publishFanout(fanoutFrame{Origin: h.instanceID, Envelope: ev})
}

func (h *Hub) publishFanout(frame fanoutFrame) {
	if h.redis == nil {
		return
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.redis.Publish(ctx, fanoutChannel, raw).Err(); err != nil {
		h.logger.Warn("fanout publish failed", zap.Error(err))
	}
}

// subscribeFanout applies events published by peer instances to the
// handles attached here.
func (h *Hub) subscribeFanout() {
	sub := h.redis.Subscribe(h.ctx, fanoutChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var frame fanoutFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				h.logger.Warn("bad fanout frame", zap.Error(err))
				continue
			}
			if frame.Origin == h.instanceID {
				continue
			}

			if frame.Target != "" {
				h.deliverLocal(frame.Target, frame.Envelope)
			} else {
				h.broadcastLocal(frame.Envelope)
			}
		}
	}
}

func (h *Hub) deliverLocal(userID string, ev event.Envelope) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for _, c := range h.clients[userID] {
		if c.isJoined() {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.SafeSend(ev, sendTimeout)
	}
}

func (h *Hub) broadcastLocal(ev event.Envelope) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0)
	for _, handles := range h.clients {
		for _, c := range handles {
			if c.isJoined() {
				targets = append(targets, c)
			}
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.SafeSend(ev, sendTimeout)
	}
}

// Stop shuts the hub down exactly once and closes every connection.
// Both the signal handler and the container teardown call it.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.clientsMu.RLock()
		for _, handles := range h.clients {
			for _, c := range handles {
				c.Close()
			}
		}
		h.clientsMu.RUnlock()

		close(h.inbound)
		h.wg.Wait()
	})
}

// -----------------------------------------------------------------
// WebSocket entry
// -----------------------------------------------------------------

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	switch origin {
	case "", "http://localhost:8100", "https://app.amoura.io":
		return true
	default:
		return false
	}
}

// ServeWS upgrades an authenticated request. userID comes from the
// verified token, never from the client payload.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, conn, h)
}
