package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/go-chi/chi/v5"
)

// ChatHistory is the read side of the message log.
type ChatHistory interface {
	History(ctx context.Context, roomID uint) ([]models.ChatMessage, error)
}

// ChatHandler serves a room's message history.
type ChatHandler struct {
	chats ChatHistory
	log   *slog.Logger
}

// NewChatHandler returns a ChatHandler. A nil log uses slog.Default.
func NewChatHandler(chats ChatHistory, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{chats: chats, log: log}
}

type chatsResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

// History serves GET /chats/{roomId}, newest first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseRoomID(chi.URLParam(r, "roomId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := h.chats.History(r.Context(), roomID)
	if err != nil {
		writeServiceError(h.log, w, "chat history", err, "roomId", roomID)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, chatsResponse{Messages: msgs})
}
