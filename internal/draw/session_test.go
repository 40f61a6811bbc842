package draw_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VishalGohania/excelidraw/internal/config"
	"github.com/VishalGohania/excelidraw/internal/draw"
	"github.com/VishalGohania/excelidraw/internal/handlers"
	apphttp "github.com/VishalGohania/excelidraw/internal/http"
	"github.com/VishalGohania/excelidraw/internal/hub"
	"github.com/VishalGohania/excelidraw/internal/idgen"
	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/VishalGohania/excelidraw/internal/repo"
	"github.com/VishalGohania/excelidraw/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type stack struct {
	url      string
	sessions *service.SessionService
	rooms    *service.RoomService
	registry *hub.Registry
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := repo.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := repo.NewSQLStore(db)
	t.Cleanup(func() { _ = store.Close() })

	s := &stack{
		sessions: service.NewSessionService(store, ""),
		rooms:    service.NewRoomService(store, nil, idgen.Generator{}, nil),
		registry: hub.NewRegistry(nil, nil),
	}
	chats := service.NewChatService(store, 1000)
	socket := handlers.NewSocketHandler(s.registry, s.sessions, s.rooms, chats, handlers.SocketOptions{
		Socket:        config.DefaultSocketConfig(),
		RequireMember: true,
	})
	srv := httptest.NewServer(apphttp.NewRouter(apphttp.Handlers{
		Rooms:    handlers.NewRoomHandler(s.rooms, s.sessions, nil),
		Chats:    handlers.NewChatHandler(chats, nil),
		Socket:   socket,
		Registry: s.registry,
	}, nil))
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

func (s *stack) account(t *testing.T, name string) models.Account {
	t.Helper()
	a, err := s.sessions.CreateAccount(context.Background(), name)
	require.NoError(t, err)
	return a
}

func (s *stack) dial(t *testing.T, a models.Account) *draw.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	sess, err := draw.Dial(ctx, s.url, a.ID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func (s *stack) attach(t *testing.T, sess *draw.Session, slug string) *draw.Engine {
	t.Helper()
	e := draw.NewEngine(draw.NewImageCanvas(200, 200), draw.NewRoomClient(s.url, nil), sess, draw.Config{})
	require.NoError(t, e.Attach(context.Background(), slug, nil))
	t.Cleanup(e.Detach)
	return e
}

func drag(e *draw.Engine, from, to protocol.Point) {
	e.PointerDown(from)
	e.PointerMove(to)
	e.PointerUp(to)
}

func p(x, y float64) protocol.Point { return protocol.Point{X: x, Y: y} }

func TestDialRejectsUnknownSession(t *testing.T) {
	s := newStack(t)
	_, err := draw.Dial(context.Background(), s.url, "no-such-account", nil)
	assert.ErrorIs(t, err, draw.ErrAdmissionRejected)
}

func TestDialReadsWelcome(t *testing.T) {
	s := newStack(t)
	sess := s.dial(t, s.account(t, "alice"))
	assert.Equal(t, "Welcome alice", sess.Welcome())
}

func TestShapesFlowBetweenEngines(t *testing.T) {
	s := newStack(t)
	alice, bob := s.account(t, "alice"), s.account(t, "bob")
	room, err := s.rooms.Create(context.Background(), alice.ID, "Shared board")
	require.NoError(t, err)

	a := s.attach(t, s.dial(t, alice), room.Slug)
	bobSession := s.dial(t, bob)
	b := s.attach(t, bobSession, room.Slug)
	require.Eventually(t, func() bool { return s.registry.RoomSize(room.ID) == 2 }, waitFor, 10*time.Millisecond)

	drag(a, p(10, 10), p(60, 40))
	require.Eventually(t, func() bool { return len(b.Shapes()) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, protocol.Rect{X: 10, Y: 10, Width: 50, Height: 30}, b.Shapes()[0].Shape)
	assert.Len(t, a.Shapes(), 1)

	// a fresh engine on the same socket replays what was persisted
	b.Detach()
	again := s.attach(t, bobSession, room.Slug)
	require.Len(t, again.Shapes(), 1)

	// the socket survived the detach and still carries chat
	payload, err := protocol.WrapShape(protocol.NewDrawOp(protocol.Circle{CenterX: 5, CenterY: 5, Radius: 5}), "manual")
	require.NoError(t, err)
	require.NoError(t, bobSession.SendChat(room.ID, payload))
	require.Eventually(t, func() bool { return len(a.Shapes()) == 2 }, waitFor, 10*time.Millisecond)
}

func TestReconnectRejoinsRooms(t *testing.T) {
	s := newStack(t)
	alice, bob := s.account(t, "alice"), s.account(t, "bob")
	room, err := s.rooms.Create(context.Background(), alice.ID, "board")
	require.NoError(t, err)

	aliceSession := s.dial(t, alice)
	joined := make(chan string, 4)
	unsub := aliceSession.Subscribe(func(m protocol.ServerMessage) {
		if m.Type == protocol.TypeSystem && strings.HasPrefix(m.Message, "Joined room") {
			joined <- m.Message
		}
	})
	defer unsub()

	a := s.attach(t, aliceSession, room.Slug)
	b := s.attach(t, s.dial(t, bob), room.Slug)
	select {
	case <-joined:
	case <-time.After(waitFor):
		t.Fatal("no join ack")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, aliceSession.Reconnect(ctx))

	select {
	case msg := <-joined:
		assert.Equal(t, "Joined room: "+room.Slug, msg)
	case <-time.After(waitFor):
		t.Fatal("no join ack after reconnect")
	}

	drag(b, p(0, 0), p(20, 20))
	require.Eventually(t, func() bool { return len(a.Shapes()) == 1 }, waitFor, 10*time.Millisecond)
}

func TestSendAfterCloseFails(t *testing.T) {
	s := newStack(t)
	sess := s.dial(t, s.account(t, "alice"))
	require.NoError(t, sess.Close())
	assert.ErrorIs(t, sess.SendChat(1, "x"), draw.ErrSessionClosed)
	assert.ErrorIs(t, sess.Reconnect(context.Background()), draw.ErrSessionClosed)
}

func TestRoomClient(t *testing.T) {
	s := newStack(t)
	alice := s.account(t, "alice")
	client := draw.NewRoomClient(s.url+"/", nil)
	ctx := context.Background()

	_, err := client.RoomBySlug(ctx, "missing")
	assert.ErrorIs(t, err, draw.ErrRoomNotFound)

	created, err := client.CreateRoom(ctx, alice.ID, "Design review")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Slug, "design-review-"))
	assert.Equal(t, alice.ID, created.AdminID)

	got, err := client.RoomBySlug(ctx, created.Slug)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	msgs, err := client.Chats(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = client.CreateRoom(ctx, "bogus", "nope")
	assert.Error(t, err)
}

func TestSocketURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?sessionId=abc"},
		{"https://draw.example.com/", "wss://draw.example.com/ws?sessionId=abc"},
		{"http://host/api", "ws://host/api/ws?sessionId=abc"},
	}
	for _, tc := range cases {
		got, err := draw.SocketURL(tc.in, "abc")
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := draw.SocketURL("ftp://host", "abc")
	assert.Error(t, err)
}
