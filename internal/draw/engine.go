// Package draw is the client side of a shared canvas: it replays a room's
// history, renders local drags optimistically, sends finished shapes and
// merges shapes drawn by other members.
package draw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/google/uuid"
)

const (
	DefaultMinShapeSize = 2.0
	DefaultDedupeSize   = 512
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrAlreadyAttached = errors.New("engine already attached")
	ErrNotAttached     = errors.New("engine not attached")
	ErrUnknownTool     = errors.New("unknown tool")
)

// RoomAPI is the read side of the server used on attach.
type RoomAPI interface {
	RoomBySlug(ctx context.Context, slug string) (models.Room, error)
	Chats(ctx context.Context, roomID uint) ([]models.ChatMessage, error)
}

// Transport is the socket the engine talks through. It outlives the engine;
// the engine never closes it.
type Transport interface {
	JoinRoom(ref protocol.RoomRef) error
	SendChat(roomID uint, message string) error
	Subscribe(fn func(protocol.ServerMessage)) (unsubscribe func())
}

// PointerHandler receives pointer events in display coordinates.
type PointerHandler interface {
	PointerDown(p protocol.Point)
	PointerMove(p protocol.Point)
	PointerUp(p protocol.Point)
}

// PointerSource delivers pointer events to a handler until unsubscribed.
type PointerSource interface {
	SubscribePointer(h PointerHandler) (unsubscribe func())
}

// Config is passed to NewEngine. Zero display sizes mean the display matches
// the canvas backing size.
type Config struct {
	Tool          Tool
	DisplayWidth  float64
	DisplayHeight float64
	MinShapeSize  float64
	DedupeSize    int
	Logger        *slog.Logger
}

type dragState struct {
	pressed bool
	anchor  protocol.Point
	current protocol.Point
	points  []protocol.Point
}

// Engine owns one canvas bound to one room. All methods are safe to call from
// the socket reader and the input source concurrently; they are serialised.
type Engine struct {
	canvas    Canvas
	api       RoomAPI
	transport Transport
	log       *slog.Logger
	minSize   float64
	newNonce  func() string

	mu            sync.Mutex
	tool          Tool
	displayWidth  float64
	displayHeight float64
	room          models.Room
	attached      bool
	shapes        []protocol.DrawOp
	drag          dragState
	seen          *seenSet
	unsubscribe   []func()
}

// NewEngine returns a detached engine drawing on canvas. Zero Config fields
// take their defaults; an invalid tool falls back to ToolRect.
func NewEngine(canvas Canvas, api RoomAPI, transport Transport, cfg Config) *Engine {
	if !cfg.Tool.Valid() {
		cfg.Tool = ToolRect
	}
	if cfg.MinShapeSize <= 0 {
		cfg.MinShapeSize = DefaultMinShapeSize
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = DefaultDedupeSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		canvas:        canvas,
		api:           api,
		transport:     transport,
		log:           cfg.Logger,
		minSize:       cfg.MinShapeSize,
		newNonce:      uuid.NewString,
		tool:          cfg.Tool,
		displayWidth:  cfg.DisplayWidth,
		displayHeight: cfg.DisplayHeight,
		seen:          newSeenSet(cfg.DedupeSize),
	}
}

// Attach resolves slug, replays its history oldest first, joins the room and
// starts listening to the transport and, when given, to pointer input.
// A room that cannot be resolved is returned as an error wrapping ErrRoomNotFound.
func (e *Engine) Attach(ctx context.Context, slug string, pointer PointerSource) error {
	e.mu.Lock()
	if e.attached {
		e.mu.Unlock()
		return ErrAlreadyAttached
	}
	e.mu.Unlock()

	room, err := e.api.RoomBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("attach %q: %w", slug, err)
	}
	history, err := e.api.Chats(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("load history for room %d: %w", room.ID, err)
	}

	e.mu.Lock()
	e.room = room
	e.shapes = e.shapes[:0]
	skipped := 0
	// history arrives newest first
	for i := len(history) - 1; i >= 0; i-- {
		payload := history[i].Message
		env, err := protocol.UnwrapShape(payload)
		if err != nil {
			skipped++
			continue
		}
		e.seen.Add(payload)
		e.shapes = append(e.shapes, env.Shape)
	}
	e.renderLocked()
	e.attached = true
	replayed := len(e.shapes)
	e.mu.Unlock()

	if skipped > 0 {
		e.log.Debug("skipped non-shape history entries", "roomId", room.ID, "count", skipped)
	}

	unsub := e.transport.Subscribe(e.handleServerMessage)
	if err := e.transport.JoinRoom(protocol.RoomByID(room.ID)); err != nil {
		unsub()
		e.mu.Lock()
		e.attached = false
		e.mu.Unlock()
		return fmt.Errorf("join room %d: %w", room.ID, err)
	}

	e.mu.Lock()
	e.unsubscribe = append(e.unsubscribe, unsub)
	if pointer != nil {
		e.unsubscribe = append(e.unsubscribe, pointer.SubscribePointer(e))
	}
	e.mu.Unlock()

	e.log.Info("canvas attached", "roomId", room.ID, "slug", room.Slug, "shapes", replayed)
	return nil
}

// Detach stops listening for input and socket messages. The transport stays open.
func (e *Engine) Detach() {
	e.mu.Lock()
	unsubs := e.unsubscribe
	e.unsubscribe = nil
	e.attached = false
	e.drag = dragState{}
	e.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// SetTool changes the tool used by the next drag. Unknown tools are
// rejected with ErrUnknownTool.
func (e *Engine) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = t
	return nil
}

// Tool returns the current tool.
func (e *Engine) Tool() Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

// SetDisplaySize records the size the canvas is shown at, for pointer scaling.
func (e *Engine) SetDisplaySize(width, height float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.displayWidth, e.displayHeight = width, height
}

// Shapes returns a copy of the committed shapes in render order.
func (e *Engine) Shapes() []protocol.DrawOp {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.DrawOp, len(e.shapes))
	copy(out, e.shapes)
	return out
}

// Room returns the attached room and whether the engine is attached.
func (e *Engine) Room() (models.Room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room, e.attached
}

// toCanvas maps display coordinates onto the canvas backing store.
func (e *Engine) toCanvas(p protocol.Point) protocol.Point {
	w, h := e.canvas.Size()
	if e.displayWidth > 0 {
		p.X *= float64(w) / e.displayWidth
	}
	if e.displayHeight > 0 {
		p.Y *= float64(h) / e.displayHeight
	}
	return p
}

// PointerDown starts a drag at p.
func (e *Engine) PointerDown(p protocol.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached {
		return
	}
	p = e.toCanvas(p)
	e.drag = dragState{pressed: true, anchor: p, current: p, points: []protocol.Point{p}}
}

// PointerMove repaints everything plus the shape being dragged.
func (e *Engine) PointerMove(p protocol.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached || !e.drag.pressed {
		return
	}
	p = e.toCanvas(p)
	e.drag.current = p
	if e.tool == ToolPencil {
		e.drag.points = append(e.drag.points, p)
	}
	Render(e.canvas, e.shapes, shapeFromDrag(e.tool, e.drag.anchor, p, e.drag.points))
}

// PointerUp finishes the drag. Degenerate shapes are dropped without sending.
func (e *Engine) PointerUp(p protocol.Point) {
	e.mu.Lock()
	if !e.attached || !e.drag.pressed {
		e.mu.Unlock()
		return
	}
	p = e.toCanvas(p)
	drag := e.drag
	e.drag = dragState{}
	if e.tool == ToolPencil && drag.points[len(drag.points)-1] != p {
		drag.points = append(drag.points, p)
	}
	shape := shapeFromDrag(e.tool, drag.anchor, p, drag.points)
	if Degenerate(shape, e.minSize) {
		e.renderLocked()
		e.mu.Unlock()
		return
	}

	op := protocol.NewDrawOp(shape)
	payload, err := protocol.WrapShape(op, e.newNonce())
	if err != nil {
		e.renderLocked()
		e.mu.Unlock()
		e.log.Error("failed to encode shape", "err", err)
		return
	}
	e.shapes = append(e.shapes, op)
	e.seen.Add(payload)
	e.renderLocked()
	roomID := e.room.ID
	e.mu.Unlock()

	if err := e.transport.SendChat(roomID, payload); err != nil {
		e.log.Warn("failed to send shape", "roomId", roomID, "err", err)
	}
}

// handleServerMessage merges shapes broadcast by other members of the room.
func (e *Engine) handleServerMessage(msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeChat:
	case protocol.TypeError:
		e.log.Warn("server error", "message", msg.Message)
		return
	default:
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.attached || (msg.RoomID != 0 && msg.RoomID != e.room.ID) {
		return
	}
	if e.seen.Has(msg.Message) {
		return
	}
	env, err := protocol.UnwrapShape(msg.Message)
	if err != nil {
		return
	}
	e.seen.Add(msg.Message)
	e.shapes = append(e.shapes, env.Shape)
	e.renderLocked()
}

func (e *Engine) renderLocked() {
	Render(e.canvas, e.shapes, nil)
}
