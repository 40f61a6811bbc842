package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/VishalGohania/excelidraw/internal/repo"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *repo.SQLStore {
	t.Helper()
	db, err := repo.OpenSQLite(":memory:")
	require.NoError(t, err)
	s := repo.NewSQLStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixedSuffixes struct {
	mu   sync.Mutex
	next []string
}

func (f *fixedSuffixes) NewSuffix() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.next) == 0 {
		return "", errors.New("out of suffixes")
	}
	s := f.next[0]
	f.next = f.next[1:]
	return s, nil
}

type memCache struct {
	mu     sync.Mutex
	byID   map[uint]models.Room
	bySlug map[string]uint
	puts   int
}

func newMemCache() *memCache {
	return &memCache{byID: map[uint]models.Room{}, bySlug: map[string]uint{}}
}

func (c *memCache) GetByID(_ context.Context, id uint) (models.Room, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[id]
	return r, ok, nil
}

func (c *memCache) GetBySlug(_ context.Context, slug string) (models.Room, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.bySlug[slug]
	if !ok {
		return models.Room{}, false, nil
	}
	return c.byID[id], true, nil
}

func (c *memCache) Put(_ context.Context, r models.Room) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[r.ID] = r
	c.bySlug[r.Slug] = r.ID
	c.puts++
	return nil
}

type countingRooms struct {
	repo.RoomRepo
	lookups atomic.Int32
}

func (c *countingRooms) GetRoomByID(ctx context.Context, id uint) (models.Room, bool, error) {
	c.lookups.Add(1)
	return c.RoomRepo.GetRoomByID(ctx, id)
}

func TestRoomCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewRoomService(store, nil, &fixedSuffixes{next: []string{"abc123"}}, nil)

	room, err := svc.Create(ctx, "owner-1", "  Team Sketch  ")
	require.NoError(t, err)
	assert.Equal(t, "team-sketch-abc123", room.Slug)
	assert.Equal(t, "owner-1", room.AdminID)

	byID, err := svc.Resolve(ctx, protocol.RoomByID(room.ID))
	require.NoError(t, err)
	assert.Equal(t, room.Slug, byID.Slug)

	bySlug, err := svc.Resolve(ctx, protocol.RoomBySlug(room.Slug))
	require.NoError(t, err)
	assert.Equal(t, room.ID, bySlug.ID)

	_, err = svc.Resolve(ctx, protocol.RoomBySlug("does-not-exist"))
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = svc.Resolve(ctx, protocol.RoomByID(999))
	assert.ErrorIs(t, err, ErrRoomNotFound)

	owned, err := svc.ListOwned(ctx, "owner-1", 10)
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestResolveNumericSlugFallsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateRoom(ctx, &models.Room{Slug: "2024", AdminID: "u1"}))

	svc := NewRoomService(store, nil, nil, nil)
	room, err := svc.Resolve(ctx, protocol.RoomBySlug("2024"))
	require.NoError(t, err)
	assert.Equal(t, "2024", room.Slug)
}

func TestCreateRetriesOnSlugCollision(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewRoomService(store, nil, &fixedSuffixes{next: []string{"aaa", "aaa", "bbb"}}, nil)

	first, err := svc.Create(ctx, "u1", "board")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "u1", "board")
	require.NoError(t, err)

	assert.Equal(t, "board-aaa", first.Slug)
	assert.Equal(t, "board-bbb", second.Slug)
}

func TestCreateValidatesName(t *testing.T) {
	svc := NewRoomService(newStore(t), nil, &fixedSuffixes{next: []string{"x"}}, nil)
	_, err := svc.Create(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidRoomName)
	_, err = svc.Create(context.Background(), "u1", strings.Repeat("a", 65))
	assert.ErrorIs(t, err, ErrInvalidRoomName)
}

func TestRoomCacheAside(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	room := models.Room{Slug: "cached", AdminID: "u1"}
	require.NoError(t, store.CreateRoom(ctx, &room))

	rooms := &countingRooms{RoomRepo: store}
	cache := newMemCache()
	svc := NewRoomService(rooms, cache, nil, nil)

	for i := 0; i < 3; i++ {
		got, err := svc.GetByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, "cached", got.Slug)
	}
	assert.Equal(t, int32(1), rooms.lookups.Load())

	// the id lookup also populated the slug index
	got, err := svc.GetBySlug(ctx, "cached")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, 1, cache.puts)
}

func TestSessionResolve(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewSessionService(store, "")

	account, err := svc.CreateAccount(ctx, "Ada")
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)

	got, err := svc.Resolve(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrMissingSession)
	_, err = svc.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.CreateAccount(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidAccountName)
}

func TestSessionResolveJWT(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewSessionService(store, "s3cret")

	account, err := svc.CreateAccount(ctx, "Grace")
	require.NoError(t, err)

	token, err := svc.IssueToken(account.ID, time.Hour)
	require.NoError(t, err)
	got, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": account.ID}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	got, err = svc.Resolve(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": account.ID}).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidSession)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": account.ID,
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// plain account ids keep working alongside JWTs
	got, err = svc.Resolve(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
}

func TestChatAppendAndReplayOrder(t *testing.T) {
	ctx := context.Background()
	svc := NewChatService(newStore(t), 1000)

	var payloads []string
	for _, shape := range []protocol.Shape{
		protocol.Rect{X: 1, Y: 1, Width: 5, Height: 5},
		protocol.Circle{CenterX: 3, CenterY: 3, Radius: 2},
		protocol.Pencil{Points: []protocol.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}},
	} {
		p, err := protocol.WrapShape(protocol.NewDrawOp(shape), "")
		require.NoError(t, err)
		payloads = append(payloads, p)
		msg, err := svc.Append(ctx, 4, "u1", p)
		require.NoError(t, err)
		assert.NotZero(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}

	history, err := svc.History(ctx, 4)
	require.NoError(t, err)
	require.Len(t, history, 3)

	var replayed []string
	for i := len(history) - 1; i >= 0; i-- {
		replayed = append(replayed, history[i].Message)
	}
	assert.Equal(t, payloads, replayed)
}

func TestChatHistoryLimit(t *testing.T) {
	ctx := context.Background()
	svc := NewChatService(newStore(t), 2)
	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, 1, "u1", "m")
		require.NoError(t, err)
	}
	history, err := svc.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
