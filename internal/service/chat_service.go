package service

import (
	"context"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/repo"
)

// ChatService is the message log. Payloads are stored verbatim.
type ChatService struct {
	repo  repo.ChatRepo
	limit int
	now   func() time.Time
}

// NewChatService returns a ChatService whose History returns at most
// historyLimit messages (no cap when <= 0).
func NewChatService(r repo.ChatRepo, historyLimit int) *ChatService {
	return &ChatService{repo: r, limit: historyLimit, now: time.Now}
}

// Append persists message stamped with the sender and the receive time.
func (s *ChatService) Append(ctx context.Context, roomID uint, userID, message string) (models.ChatMessage, error) {
	msg := models.ChatMessage{
		RoomID:    roomID,
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendChat(ctx, &msg); err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// History returns the latest messages of a room, newest first.
func (s *ChatService) History(ctx context.Context, roomID uint) ([]models.ChatMessage, error) {
	return s.repo.ListChats(ctx, roomID, s.limit)
}
