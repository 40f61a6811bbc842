package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/service"
	"github.com/go-chi/chi/v5"
)

// RoomDirectory is the room lookup and creation surface used by the HTTP handlers.
type RoomDirectory interface {
	GetBySlug(ctx context.Context, slug string) (models.Room, error)
	Create(ctx context.Context, ownerID, name string) (models.Room, error)
	ListOwned(ctx context.Context, ownerID string, limit int) ([]models.Room, error)
}

// RoomHandler serves the room directory endpoints.
type RoomHandler struct {
	rooms    RoomDirectory
	sessions SessionResolver
	log      *slog.Logger
}

// NewRoomHandler returns a RoomHandler. A nil log uses slog.Default.
func NewRoomHandler(rooms RoomDirectory, sessions SessionResolver, log *slog.Logger) *RoomHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoomHandler{rooms: rooms, sessions: sessions, log: log}
}

type createRoomRequest struct {
	RoomName string `json:"roomName"`
}

func (r createRoomRequest) validate() error {
	if param(r.RoomName) == "" {
		return errRoomNameNeeded
	}
	return nil
}

type roomResponse struct {
	Room models.Room `json:"room"`
}

// Get serves GET /room/{slug}.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := param(chi.URLParam(r, "slug"))
	if err := validateSlug(slug); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := h.rooms.GetBySlug(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, "get room", err, "slug", slug)
		return
	}
	respondJSON(w, http.StatusOK, roomResponse{Room: room})
}

// Create serves POST /room for an authenticated account.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var in createRoomRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := h.rooms.Create(r.Context(), account.ID, in.RoomName)
	if err != nil {
		h.writeServiceError(w, "create room", err, "adminId", account.ID)
		return
	}
	respondJSON(w, http.StatusOK, roomResponse{Room: room})
}

// ListMine serves GET /rooms: the rooms created by the caller.
func (h *RoomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	rooms, err := h.rooms.ListOwned(r.Context(), account.ID, 100)
	if err != nil {
		h.writeServiceError(w, "list rooms", err, "adminId", account.ID)
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (h *RoomHandler) authenticate(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	token, err := bearerToken(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return models.Account{}, false
	}
	account, err := h.sessions.Resolve(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, "resolve session", err)
		return models.Account{}, false
	}
	return account, true
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *RoomHandler) writeServiceError(w http.ResponseWriter, op string, err error, attrs ...any) {
	writeServiceError(h.log, w, op, err, attrs...)
}

func writeServiceError(log *slog.Logger, w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, service.ErrInvalidRoomName):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrMissingSession), errors.Is(err, service.ErrInvalidSession):
		respondError(w, http.StatusUnauthorized, "invalid session")
	default:
		log.Error(op+" failed", append(attrs, "err", err)...)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
