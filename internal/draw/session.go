package draw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/gorilla/websocket"
)

var (
	ErrAdmissionRejected = errors.New("session rejected by server")
	ErrSessionClosed     = errors.New("session closed")
)

const writeWait = 10 * time.Second

// Session owns the client socket. Engines attach to and detach from it; only
// Close ends it. Reconnect re-sends join_room for every joined room.
type Session struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	writeMu sync.Mutex // one writer at a time on ws

	mu      sync.Mutex
	ws      *websocket.Conn
	done    chan struct{}
	welcome string
	closed  bool
	joined  map[string]protocol.RoomRef
	subs    map[int]func(protocol.ServerMessage)
	nextSub int
}

// SocketURL turns an http(s) server base URL into the room socket URL for token.
func SocketURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"sessionId": {token}}.Encode()
	return u.String(), nil
}

// Dial opens a session. If the server refuses the token the returned error
// wraps ErrAdmissionRejected.
func Dial(ctx context.Context, serverURL, token string, log *slog.Logger) (*Session, error) {
	wsURL, err := SocketURL(serverURL, token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		log:    log,
		joined: make(map[string]protocol.RoomRef),
		subs:   make(map[int]func(protocol.ServerMessage)),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// connect dials, waits for the welcome and starts the reader.
func (s *Session) connect(ctx context.Context) error {
	ws, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
			return fmt.Errorf("%w: %s", ErrAdmissionRejected, ce.Text)
		}
		return fmt.Errorf("read welcome: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	welcome, err := protocol.ParseServerMessage(data)
	if err != nil || welcome.Type != protocol.TypeSystem {
		_ = ws.Close()
		return fmt.Errorf("unexpected first frame: %s", data)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.ws = ws
	s.done = done
	s.welcome = welcome.Message
	s.mu.Unlock()

	go s.readLoop(ws, done)
	return nil
}

func (s *Session) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("session read failed", "err", err)
			}
			return
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			s.log.Debug("ignoring unparsable frame", "err", err)
			continue
		}

		s.mu.Lock()
		subs := make([]func(protocol.ServerMessage), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
		s.mu.Unlock()

		for _, fn := range subs {
			fn(msg)
		}
	}
}

// Welcome returns the greeting of the current connection.
func (s *Session) Welcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome
}

// Done is closed when the current connection's reader stops.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Subscribe registers fn for every inbound frame. Subscriptions survive Reconnect.
func (s *Session) Subscribe(fn func(protocol.ServerMessage)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// JoinRoom sends join_room and remembers ref for Reconnect.
func (s *Session) JoinRoom(ref protocol.RoomRef) error {
	if err := s.write(protocol.JoinRoom(ref)); err != nil {
		return err
	}
	s.mu.Lock()
	s.joined[ref.String()] = ref
	s.mu.Unlock()
	return nil
}

// LeaveRoom sends leave_room and forgets ref.
func (s *Session) LeaveRoom(ref protocol.RoomRef) error {
	s.mu.Lock()
	delete(s.joined, ref.String())
	s.mu.Unlock()
	return s.write(protocol.LeaveRoom(ref))
}

// SendChat sends message to the room with the given numeric id.
func (s *Session) SendChat(roomID uint, message string) error {
	return s.write(protocol.Chat(protocol.RoomByID(roomID), message))
}

func (s *Session) write(msg protocol.ClientMessage) error {
	s.mu.Lock()
	ws, closed := s.ws, s.closed
	s.mu.Unlock()
	if closed || ws == nil {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(msg)
}

// Reconnect replaces the socket and rejoins every room joined so far.
// The server keeps no memberships across sockets, so this is the only way back in.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	old, oldDone := s.ws, s.done
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
		<-oldDone
	}
	if err := s.connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	refs := make([]protocol.RoomRef, 0, len(s.joined))
	for _, ref := range s.joined {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	for _, ref := range refs {
		if err := s.write(protocol.JoinRoom(ref)); err != nil {
			return fmt.Errorf("rejoin %s: %w", ref, err)
		}
	}
	s.log.Info("session reconnected", "rooms", len(refs))
	return nil
}

// Close sends a close frame and waits for the reader to stop.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ws, done := s.ws, s.done
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()

	select {
	case <-done:
	case <-time.After(writeWait):
	}
	return ws.Close()
}
