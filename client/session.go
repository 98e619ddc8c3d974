package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Amoura/internal/event"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the session's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
)

// Handler receives the decoded payload of one event kind.
type Handler func(payload any)

// SessionConfig configures the connection session manager.
type SessionConfig struct {
	// SocketURL is the ws:// or wss:// endpoint, without query.
	SocketURL string
	Token     string
	UserID    string

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	Logger *zap.Logger
}

// Session owns the single logical connection to the relay. It dials,
// emits join after every connect (not just the first), dispatches
// decoded events to registered listeners, and retries dropped
// connections with bounded backoff. Exhausted retries leave it
// Disconnected until the next external Connect (foreground, login).
type Session struct {
	cfg    SessionConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            State
	intentionalClose bool
	cancel           context.CancelFunc

	writeMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[event.Kind]map[string]Handler
	onState     map[string]func(State)

	recon *reconnector
}

// NewSession builds a session manager; it does not connect.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:       cfg,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		state:     StateDisconnected,
		listeners: make(map[event.Kind]map[string]Handler),
		onState:   make(map[string]func(State)),
		recon:     newReconnector(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// On registers a listener for an event kind. Listeners are keyed by
// (kind, id): registering the same id again replaces the previous
// handler, so repeated reconnect wiring cannot double-fire. Listeners
// survive reconnects; they are attached to the dispatcher, not to any
// one transport connection.
func (s *Session) On(kind event.Kind, id string, h Handler) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	if s.listeners[kind] == nil {
		s.listeners[kind] = make(map[string]Handler)
	}
	s.listeners[kind][id] = h
}

// Off removes a listener by its key.
func (s *Session) Off(kind event.Kind, id string) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	delete(s.listeners[kind], id)
}

// OnStateChange registers a state transition observer, keyed like On.
func (s *Session) OnStateChange(id string, fn func(State)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.onState[id] = fn
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	s.listenersMu.RLock()
	observers := make([]func(State), 0, len(s.onState))
	for _, fn := range s.onState {
		observers = append(observers, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range observers {
		fn(next)
	}
}

// Connect dials the relay. Triggered externally by app foreground,
// login, or by the retry loop after a drop.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.mu.Unlock()
	s.notifyState(StateConnecting)

	url := s.socketURL()
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial relay: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	// join is mandatory after EVERY connect, or server-side presence
	// silently breaks on reconnect
	if err := s.writeEvent(event.New(event.KindJoin, event.JoinPayload{UserID: s.cfg.UserID})); err != nil {
		cancel()
		conn.Close()
		s.setState(StateDisconnected)
		return fmt.Errorf("emit join: %w", err)
	}

	s.recon.markConnected()
	s.setState(StateJoined)
	s.logger.Info("session joined", zap.String("user_id", s.cfg.UserID))

	go s.readLoop(runCtx, conn)
	return nil
}

func (s *Session) socketURL() string {
	url := s.cfg.SocketURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "token=" + s.cfg.Token
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.handleDrop(err)
			return
		}

		payload, err := env.Decode()
		if err != nil {
			// a malformed event is dropped at the trust boundary, it
			// never reaches the cache
			s.logger.Warn("rejected push event", zap.Error(err))
			continue
		}
		s.dispatch(env.Event, payload)
	}
}

func (s *Session) dispatch(kind event.Kind, payload any) {
	s.listenersMu.RLock()
	handlers := make([]Handler, 0, len(s.listeners[kind]))
	for _, h := range s.listeners[kind] {
		handlers = append(handlers, h)
	}
	s.listenersMu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (s *Session) handleDrop(cause error) {
	s.mu.Lock()
	intentional := s.intentionalClose
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	s.setState(StateDisconnected)

	if intentional {
		return
	}
	s.logger.Warn("connection dropped", zap.Error(cause))
	go s.retryLoop()
}

// retryLoop re-dials with bounded backoff. It never loops forever:
// once attempts are exhausted the session stays Disconnected until the
// next external trigger.
func (s *Session) retryLoop() {
	for s.recon.shouldReconnect() {
		delay := s.recon.nextDelay()
		s.logger.Info("reconnecting", zap.Duration("delay", delay))
		time.Sleep(delay)

		s.mu.Lock()
		if s.intentionalClose {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
	}
	s.logger.Warn("reconnect attempts exhausted")
}

// SendTyping relays a typing indicator; dropped silently when not
// joined.
func (s *Session) SendTyping(conversationKey string, isTyping bool) {
	if s.State() != StateJoined {
		return
	}
	_ = s.writeEvent(event.New(event.KindTyping, event.TypingPayload{
		ConversationKey: conversationKey,
		UserID:          s.cfg.UserID,
		IsTyping:        isTyping,
	}))
}

// Logout emits an explicit set-offline before tearing down, so server
// presence does not wait for the heartbeat reaper, then closes without
// scheduling a retry.
func (s *Session) Logout() {
	s.mu.Lock()
	s.intentionalClose = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = s.writeEvent(event.New(event.KindLeave, event.LeavePayload{UserID: s.cfg.UserID}))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.conn = nil
	s.mu.Unlock()
	s.setState(StateDisconnected)
	s.recon.reset()
}

func (s *Session) writeEvent(ev event.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(ev)
}

func (s *Session) notifyState(st State) {
	s.listenersMu.RLock()
	observers := make([]func(State), 0, len(s.onState))
	for _, fn := range s.onState {
		observers = append(observers, fn)
	}
	s.listenersMu.RUnlock()
	for _, fn := range observers {
		fn(st)
	}
}
