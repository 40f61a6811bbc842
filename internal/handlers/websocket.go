package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/VishalGohania/excelidraw/internal/hub"
	"github.com/VishalGohania/excelidraw/internal/metrics"
	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/VishalGohania/excelidraw/internal/service"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Reply texts sent to clients.
const (
	msgRoomNotFound   = "Room not found"
	msgRoomLookup     = "Room lookup failed"
	msgNotMember      = "Not a member of room"
	msgSaveFailed     = "Failed to save message"
	msgInvalidMessage = "Invalid message"
	msgLeftRoom       = "Left room"
)

// SessionResolver maps a session token to its account.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (models.Account, error)
}

// RoomResolver finds a room by numeric id or slug.
type RoomResolver interface {
	Resolve(ctx context.Context, ref protocol.RoomRef) (models.Room, error)
}

// ChatAppender persists one chat message and returns the stored record.
type ChatAppender interface {
	Append(ctx context.Context, roomID uint, userID, message string) (models.ChatMessage, error)
}

// SocketOptions configures the room socket endpoint.
type SocketOptions struct {
	Socket         config.SocketConfig
	RequireMember  bool     // reject chat for rooms the connection has not joined
	AllowedOrigins []string // empty allows any origin
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// SocketHandler runs the room session protocol on each admitted socket.
type SocketHandler struct {
	registry *hub.Registry
	sessions SessionResolver
	rooms    RoomResolver
	chats    ChatAppender
	opts     SocketOptions
	upgrader websocket.Upgrader
	log      *slog.Logger
	metrics  *metrics.Metrics
	active   sync.WaitGroup // one per admitted socket
}

// NewSocketHandler returns the room socket endpoint. Zero options get
// defaults: slog.Default, private metrics and DefaultSocketConfig.
func NewSocketHandler(registry *hub.Registry, sessions SessionResolver, rooms RoomResolver, chats ChatAppender, opts SocketOptions) *SocketHandler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Socket.PingInterval <= 0 {
		opts.Socket = config.DefaultSocketConfig()
	}
	h := &SocketHandler{
		registry: registry,
		sessions: sessions,
		rooms:    rooms,
		chats:    chats,
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin allows non-browser clients (no Origin header) and listed origins.
func (h *SocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin) || slices.Contains(h.opts.AllowedOrigins, "*")
}

// ServeHTTP admits the socket identified by ?sessionId= and then processes its
// messages one at a time until it closes.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, admitErr := h.sessions.Resolve(ctx, r.URL.Query().Get("sessionId"))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	if admitErr != nil {
		h.reject(ws, admitErr)
		return
	}
	h.metrics.Admissions.WithLabelValues("accepted").Inc()

	h.active.Add(1)
	defer h.active.Done()

	cfg := h.opts.Socket
	conn := hub.NewConnection(account.ID, account.Name, cfg.SendBuffer)
	h.registry.Register(conn)
	log := h.log.With("connId", conn.ID(), "accountId", account.ID)
	log.Info("socket connected")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := hub.WritePump(ws, conn, cfg); err != nil {
			log.Debug("write pump stopped", "err", err)
		}
	}()
	defer func() {
		h.registry.Deregister(conn)
		<-pumpDone
		log.Info("socket disconnected")
	}()

	h.reply(conn, protocol.System("Welcome "+account.Name))

	hub.PrepareReader(ws, cfg)
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("socket read failed", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			h.replyError(conn, "invalid_message", msgInvalidMessage)
			continue
		}
		h.handleMessage(ctx, conn, data)
	}
}

// Drain closes every admitted socket and waits until their handlers have
// returned, so no message is still being persisted. The listener must
// already be stopped. Returns ctx.Err() if ctx ends first.
func (h *SocketHandler) Drain(ctx context.Context) error {
	n := h.registry.CloseAll()
	h.log.Info("draining sockets", "connections", n)

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reject closes a socket that failed admission with 1008 (policy violation).
// Store failures close with 1011 instead, since the token may be valid.
func (h *SocketHandler) reject(ws *websocket.Conn, err error) {
	code, reason := websocket.ClosePolicyViolation, "Invalid session"
	switch {
	case errors.Is(err, service.ErrMissingSession):
		reason = "sessionId required"
	case errors.Is(err, service.ErrInvalidSession):
	default:
		h.log.Error("session lookup failed", "err", err)
		code, reason = websocket.CloseInternalServerErr, "Session lookup failed"
	}
	h.metrics.Admissions.WithLabelValues("rejected").Inc()

	deadline := time.Now().Add(h.opts.Socket.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

func (h *SocketHandler) handleMessage(ctx context.Context, conn *hub.Connection, data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			h.replyError(conn, "unknown_type", "Unknown message type: "+unknown.Type)
			return
		}
		h.replyError(conn, "invalid_message", msgInvalidMessage)
		return
	}
	h.metrics.Messages.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case protocol.TypeJoinRoom:
		h.handleJoin(ctx, conn, msg)
	case protocol.TypeLeaveRoom:
		h.handleLeave(ctx, conn, msg)
	case protocol.TypeChat:
		h.handleChat(ctx, conn, msg)
	}
}

func (h *SocketHandler) handleJoin(ctx context.Context, conn *hub.Connection, msg protocol.ClientMessage) {
	room, ok := h.resolveRoom(ctx, conn, msg.RoomID)
	if !ok {
		return
	}
	if err := h.registry.Join(conn, room.ID); err != nil {
		return
	}
	ack := protocol.System("Joined room: " + room.Slug)
	ack.RoomID = room.ID
	h.reply(conn, ack)
}

// handleLeave always acknowledges, even when the room was never joined or
// does not resolve.
func (h *SocketHandler) handleLeave(ctx context.Context, conn *hub.Connection, msg protocol.ClientMessage) {
	room, err := h.rooms.Resolve(ctx, msg.RoomID)
	switch {
	case err == nil:
		h.registry.Leave(conn, room.ID)
	default:
		if !errors.Is(err, service.ErrRoomNotFound) {
			h.log.Warn("room lookup failed on leave", "roomId", msg.RoomID.String(), "err", err)
		}
		if id, ok := msg.RoomID.ID(); ok {
			h.registry.Leave(conn, id)
		}
	}
	h.reply(conn, protocol.System(msgLeftRoom))
}

// handleChat persists the message and only then broadcasts it to the other
// members of the room. The sender never receives its own message back.
func (h *SocketHandler) handleChat(ctx context.Context, conn *hub.Connection, msg protocol.ClientMessage) {
	room, ok := h.resolveRoom(ctx, conn, msg.RoomID)
	if !ok {
		return
	}
	if h.opts.RequireMember && !h.registry.IsMember(conn, room.ID) {
		h.replyError(conn, "not_member", msgNotMember)
		return
	}

	start := time.Now()
	saved, err := h.chats.Append(ctx, room.ID, conn.AccountID(), msg.Message)
	h.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.log.Error("failed to save message", "connId", conn.ID(), "roomId", room.ID, "err", err)
		h.replyError(conn, "persist_failed", msgSaveFailed)
		return
	}

	out, err := protocol.ChatBroadcast(room.ID, conn.AccountID(), conn.Name(), saved.Message, saved.CreatedAt).Encode()
	if err != nil {
		h.log.Error("failed to encode broadcast", "err", err)
		return
	}
	n := h.registry.Broadcast(room.ID, out, conn)
	h.log.Debug("chat broadcast", "roomId", room.ID, "chatId", saved.ID, "recipients", n)
}

func (h *SocketHandler) resolveRoom(ctx context.Context, conn *hub.Connection, ref protocol.RoomRef) (models.Room, bool) {
	room, err := h.rooms.Resolve(ctx, ref)
	if err == nil {
		return room, true
	}
	if errors.Is(err, service.ErrRoomNotFound) {
		h.replyError(conn, "room_not_found", msgRoomNotFound)
	} else {
		h.log.Error("room lookup failed", "roomId", ref.String(), "err", err)
		h.replyError(conn, "room_lookup", msgRoomLookup)
	}
	return models.Room{}, false
}

func (h *SocketHandler) replyError(conn *hub.Connection, reason, message string) {
	h.metrics.ProtocolErrors.WithLabelValues(reason).Inc()
	h.reply(conn, protocol.Error(message))
}

func (h *SocketHandler) reply(conn *hub.Connection, msg protocol.ServerMessage) {
	b, err := msg.Encode()
	if err != nil {
		h.log.Error("failed to encode reply", "err", err)
		return
	}
	if err := conn.Send(b); err != nil {
		h.log.Warn("reply dropped", "connId", conn.ID(), "err", err)
	}
}
