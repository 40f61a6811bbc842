package draw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	rooms map[string]models.Room
	chats map[uint][]models.ChatMessage
}

func (f *fakeAPI) RoomBySlug(_ context.Context, slug string) (models.Room, error) {
	r, ok := f.rooms[slug]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return r, nil
}

func (f *fakeAPI) Chats(_ context.Context, roomID uint) ([]models.ChatMessage, error) {
	return f.chats[roomID], nil
}

type sentChat struct {
	roomID  uint
	message string
}

type fakeTransport struct {
	mu      sync.Mutex
	joined  []protocol.RoomRef
	sent    []sentChat
	subs    map[int]func(protocol.ServerMessage)
	next    int
	closed  bool
	joinErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: map[int]func(protocol.ServerMessage){}}
}

func (f *fakeTransport) JoinRoom(ref protocol.RoomRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, ref)
	return nil
}

func (f *fakeTransport) SendChat(roomID uint, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentChat{roomID, message})
	return nil
}

func (f *fakeTransport) Subscribe(fn func(protocol.ServerMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) deliver(msg protocol.ServerMessage) {
	f.mu.Lock()
	subs := make([]func(protocol.ServerMessage), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (f *fakeTransport) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeTransport) sends() []sentChat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentChat(nil), f.sent...)
}

type fakePointer struct {
	handler PointerHandler
}

func (p *fakePointer) SubscribePointer(h PointerHandler) func() {
	p.handler = h
	return func() { p.handler = nil }
}

func wrap(t *testing.T, s protocol.Shape) string {
	t.Helper()
	payload, err := protocol.WrapShape(protocol.NewDrawOp(s), "")
	require.NoError(t, err)
	return payload
}

type engineFixture struct {
	engine    *Engine
	canvas    *recordingCanvas
	api       *fakeAPI
	transport *fakeTransport
	pointer   *fakePointer
	room      models.Room
}

func newFixture(t *testing.T, tool Tool, history ...string) *engineFixture {
	t.Helper()
	room := models.Room{ID: 5, Slug: "board-x1", AdminID: "u1"}
	api := &fakeAPI{
		rooms: map[string]models.Room{room.Slug: room},
		chats: map[uint][]models.ChatMessage{},
	}
	// history is given oldest first; the server returns newest first
	for i := len(history) - 1; i >= 0; i-- {
		api.chats[room.ID] = append(api.chats[room.ID], models.ChatMessage{ID: uint(i + 1), RoomID: room.ID, Message: history[i]})
	}

	f := &engineFixture{
		canvas:    newRecordingCanvas(200, 100),
		api:       api,
		transport: newFakeTransport(),
		pointer:   &fakePointer{},
		room:      room,
	}
	f.engine = NewEngine(f.canvas, f.api, f.transport, Config{Tool: tool, MinShapeSize: 2})
	n := 0
	f.engine.newNonce = func() string { n++; return fmt.Sprintf("n%d", n) }
	require.NoError(t, f.engine.Attach(context.Background(), room.Slug, f.pointer))
	return f
}

func TestAttachReplaysHistoryOldestFirstAndJoins(t *testing.T) {
	first := wrap(t, protocol.Rect{X: 1, Y: 1, Width: 5, Height: 5})
	second := wrap(t, protocol.Circle{CenterX: 9, CenterY: 9, Radius: 3})
	f := newFixture(t, ToolRect, first, "just some chat text", `{"shape":{"type":"hexagon"}}`, second)

	shapes := f.engine.Shapes()
	require.Len(t, shapes, 2)
	assert.Equal(t, protocol.ShapeRect, shapes[0].Kind())
	assert.Equal(t, protocol.ShapeCircle, shapes[1].Kind())

	// rendered exactly once
	assert.Equal(t, []string{"clear", "background", "rect 1 1 5 5", "circle 9 9 3"}, f.canvas.ops)

	require.Len(t, f.transport.joined, 1)
	id, ok := f.transport.joined[0].ID()
	assert.True(t, ok)
	assert.Equal(t, f.room.ID, id)
	assert.Equal(t, 1, f.transport.subscribers())
}

func TestAttachUnknownRoomIsFatal(t *testing.T) {
	transport := newFakeTransport()
	e := NewEngine(newRecordingCanvas(10, 10), &fakeAPI{}, transport, Config{})
	err := e.Attach(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, transport.joined)
	assert.Equal(t, 0, transport.subscribers())

	_, attached := e.Room()
	assert.False(t, attached)
}

func TestAttachJoinFailureUnsubscribes(t *testing.T) {
	room := models.Room{ID: 1, Slug: "r"}
	transport := newFakeTransport()
	transport.joinErr = errors.New("socket gone")
	e := NewEngine(newRecordingCanvas(10, 10), &fakeAPI{rooms: map[string]models.Room{"r": room}}, transport, Config{})

	assert.Error(t, e.Attach(context.Background(), "r", nil))
	assert.Equal(t, 0, transport.subscribers())
}

func TestAttachTwice(t *testing.T) {
	f := newFixture(t, ToolRect)
	assert.ErrorIs(t, f.engine.Attach(context.Background(), f.room.Slug, nil), ErrAlreadyAttached)
}

func TestRectDragSendsSignedRect(t *testing.T) {
	f := newFixture(t, ToolRect)
	f.pointer.handler.PointerDown(pt(10, 10))
	f.pointer.handler.PointerMove(pt(30, 20))
	f.pointer.handler.PointerUp(pt(0, 0))

	sent := f.transport.sends()
	require.Len(t, sent, 1)
	assert.Equal(t, f.room.ID, sent[0].roomID)

	env, err := protocol.UnwrapShape(sent[0].message)
	require.NoError(t, err)
	assert.Equal(t, protocol.Rect{X: 10, Y: 10, Width: -10, Height: -10}, env.Shape.Shape)
	assert.Equal(t, "n1", env.Nonce)

	require.Len(t, f.engine.Shapes(), 1)
	// committed shape renders normalized
	assert.Equal(t, "rect 0 0 10 10", f.canvas.ops[len(f.canvas.ops)-1])
}

func TestMoveRepaintsWithPreview(t *testing.T) {
	f := newFixture(t, ToolRect, wrap(t, protocol.Rect{X: 1, Y: 1, Width: 5, Height: 5}))
	f.canvas.reset()

	f.pointer.handler.PointerDown(pt(10, 10))
	f.pointer.handler.PointerMove(pt(50, 30))

	assert.Equal(t, []string{"clear", "background", "rect 1 1 5 5", "rect 10 10 40 20"}, f.canvas.ops)
	assert.Empty(t, f.transport.sends())
}

func TestCircleDrag(t *testing.T) {
	f := newFixture(t, ToolCircle)
	f.engine.PointerDown(pt(0, 0))
	f.engine.PointerUp(pt(40, 0))

	sent := f.transport.sends()
	require.Len(t, sent, 1)
	env, err := protocol.UnwrapShape(sent[0].message)
	require.NoError(t, err)
	assert.Equal(t, protocol.Circle{CenterX: 20, CenterY: 0, Radius: 20}, env.Shape.Shape)
}

func TestPencilKeepsEverySample(t *testing.T) {
	f := newFixture(t, ToolPencil)
	f.engine.PointerDown(pt(0, 0))
	f.engine.PointerMove(pt(1, 1))
	f.engine.PointerMove(pt(2, 1))
	f.engine.PointerMove(pt(2, 1))
	f.engine.PointerUp(pt(2, 1))

	sent := f.transport.sends()
	require.Len(t, sent, 1)
	env, err := protocol.UnwrapShape(sent[0].message)
	require.NoError(t, err)
	assert.Equal(t, protocol.Pencil{Points: []protocol.Point{pt(0, 0), pt(1, 1), pt(2, 1), pt(2, 1)}}, env.Shape.Shape)
}

func TestSinglePointPencilIsDiscarded(t *testing.T) {
	f := newFixture(t, ToolPencil)
	f.engine.PointerDown(pt(7, 7))
	f.engine.PointerUp(pt(7, 7))

	assert.Empty(t, f.transport.sends())
	assert.Empty(t, f.engine.Shapes())
}

func TestTinyShapesAreDiscarded(t *testing.T) {
	f := newFixture(t, ToolRect)
	f.engine.PointerDown(pt(7, 7))
	f.engine.PointerUp(pt(8, 30))

	require.NoError(t, f.engine.SetTool(ToolCircle))
	f.engine.PointerDown(pt(7, 7))
	f.engine.PointerUp(pt(7.5, 7.5))

	assert.Empty(t, f.transport.sends())
	assert.Empty(t, f.engine.Shapes())
}

func TestPointerScaling(t *testing.T) {
	f := newFixture(t, ToolRect)
	// canvas backing store is 200x100, shown at 100x50
	f.engine.SetDisplaySize(100, 50)
	f.engine.PointerDown(pt(5, 5))
	f.engine.PointerUp(pt(25, 15))

	sent := f.transport.sends()
	require.Len(t, sent, 1)
	env, err := protocol.UnwrapShape(sent[0].message)
	require.NoError(t, err)
	assert.Equal(t, protocol.Rect{X: 10, Y: 10, Width: 40, Height: 20}, env.Shape.Shape)
}

func TestRemoteShapesAreMergedOnce(t *testing.T) {
	f := newFixture(t, ToolRect)
	payload := wrap(t, protocol.Rect{X: 3, Y: 3, Width: 9, Height: 9})
	msg := protocol.ServerMessage{Type: protocol.TypeChat, Message: payload, RoomID: f.room.ID}

	f.transport.deliver(msg)
	f.transport.deliver(msg)
	f.transport.deliver(protocol.ServerMessage{Type: protocol.TypeChat, Message: "hello", RoomID: f.room.ID})
	f.transport.deliver(protocol.ServerMessage{Type: protocol.TypeChat, Message: wrap(t, protocol.Circle{Radius: 4}), RoomID: f.room.ID + 1})
	f.transport.deliver(protocol.System("Joined room: board-x1"))

	shapes := f.engine.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, protocol.Rect{X: 3, Y: 3, Width: 9, Height: 9}, shapes[0].Shape)
}

func TestOwnShapeIsNotAppliedTwice(t *testing.T) {
	f := newFixture(t, ToolRect)
	f.engine.PointerDown(pt(10, 10))
	f.engine.PointerUp(pt(50, 30))

	sent := f.transport.sends()
	require.Len(t, sent, 1)
	f.transport.deliver(protocol.ServerMessage{Type: protocol.TypeChat, Message: sent[0].message, RoomID: f.room.ID})

	assert.Len(t, f.engine.Shapes(), 1)
}

func TestDetachKeepsTransportOpen(t *testing.T) {
	f := newFixture(t, ToolRect)
	f.engine.Detach()

	assert.False(t, f.transport.closed)
	assert.Equal(t, 0, f.transport.subscribers())
	assert.Nil(t, f.pointer.handler)

	// input after detach is ignored
	f.engine.PointerDown(pt(0, 0))
	f.engine.PointerUp(pt(50, 50))
	assert.Empty(t, f.transport.sends())

	// the same transport can back a new engine
	again := NewEngine(newRecordingCanvas(10, 10), f.api, f.transport, Config{})
	require.NoError(t, again.Attach(context.Background(), f.room.Slug, nil))
	assert.Equal(t, 1, f.transport.subscribers())
}

func TestSetToolRejectsUnknown(t *testing.T) {
	f := newFixture(t, ToolRect)
	assert.ErrorIs(t, f.engine.SetTool("eraser"), ErrUnknownTool)
	assert.Equal(t, ToolRect, f.engine.Tool())
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	s.Add("b")
	s.Add("c")
	assert.False(t, s.Has("a"))
	assert.True(t, s.Has("b"))
	assert.Equal(t, 2, s.Len())

	// seeing b again does not make it newer than c
	assert.False(t, s.Add("b"))
	s.Add("d")
	assert.False(t, s.Has("b"))
	assert.True(t, s.Has("c"))
	assert.True(t, s.Has("d"))
}
