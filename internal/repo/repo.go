package repo

import (
	"context"
	"errors"

	"github.com/VishalGohania/excelidraw/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// AccountRepo is the session store: accounts keyed by their identity token.
type AccountRepo interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (models.Account, bool, error)
}

// RoomRepo is the room directory.
type RoomRepo interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoomByID(ctx context.Context, id uint) (models.Room, bool, error)
	GetRoomBySlug(ctx context.Context, slug string) (models.Room, bool, error)
	ExistsSlug(ctx context.Context, slug string) (bool, error)
	ListRoomsByAdmin(ctx context.Context, adminID string, limit int) ([]models.Room, error)
}

// ChatRepo is the append-only message log.
type ChatRepo interface {
	// AppendChat assigns msg.ID (monotonic per store) and persists it.
	AppendChat(ctx context.Context, msg *models.ChatMessage) error
	// ListChats returns up to limit messages of a room, newest first.
	ListChats(ctx context.Context, roomID uint, limit int) ([]models.ChatMessage, error)
}

// RoomCache is a read-through cache in front of RoomRepo. Rooms never change
// after creation, so entries only expire.
type RoomCache interface {
	GetByID(ctx context.Context, id uint) (models.Room, bool, error)
	GetBySlug(ctx context.Context, slug string) (models.Room, bool, error)
	Put(ctx context.Context, room models.Room) error
}
