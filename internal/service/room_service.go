// Package service holds the room directory, session and message log logic
// that sits between the transport handlers and the stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/protocol"
	"github.com/VishalGohania/excelidraw/internal/repo"
	"github.com/gosimple/slug"
	"golang.org/x/sync/singleflight"
)

const maxRoomNameLen = 64

// RoomService is the room directory. Reads go through an optional cache;
// concurrent lookups of the same key share one store query.
type RoomService struct {
	repo  repo.RoomRepo
	cache repo.RoomCache // nil disables caching
	idg   IDGenerator
	group singleflight.Group
	log   *slog.Logger
}

// IDGenerator produces the random suffix appended to room slugs.
type IDGenerator interface {
	NewSuffix() (string, error)
}

// NewRoomService returns a RoomService. cache and log may be nil.
func NewRoomService(r repo.RoomRepo, cache repo.RoomCache, idg IDGenerator, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{repo: r, cache: cache, idg: idg, log: log}
}

// GetByID returns ErrRoomNotFound when no room has that id.
func (s *RoomService) GetByID(ctx context.Context, id uint) (models.Room, error) {
	v, err, _ := s.group.Do(fmt.Sprintf("id:%d", id), func() (any, error) {
		if room, ok := s.cacheGet(ctx, func() (models.Room, bool, error) { return s.cache.GetByID(ctx, id) }); ok {
			return room, nil
		}
		room, ok, err := s.repo.GetRoomByID(ctx, id)
		if err != nil {
			return models.Room{}, err
		}
		if !ok {
			return models.Room{}, ErrRoomNotFound
		}
		s.cachePut(ctx, room)
		return room, nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return v.(models.Room), nil
}

// GetBySlug returns ErrRoomNotFound when no room has that slug.
func (s *RoomService) GetBySlug(ctx context.Context, roomSlug string) (models.Room, error) {
	v, err, _ := s.group.Do("slug:"+roomSlug, func() (any, error) {
		if room, ok := s.cacheGet(ctx, func() (models.Room, bool, error) { return s.cache.GetBySlug(ctx, roomSlug) }); ok {
			return room, nil
		}
		room, ok, err := s.repo.GetRoomBySlug(ctx, roomSlug)
		if err != nil {
			return models.Room{}, err
		}
		if !ok {
			return models.Room{}, ErrRoomNotFound
		}
		s.cachePut(ctx, room)
		return room, nil
	})
	if err != nil {
		return models.Room{}, err
	}
	return v.(models.Room), nil
}

// Resolve looks a client room reference up by id, then by slug.
// A digits-only string that misses as an id is still tried as a slug.
func (s *RoomService) Resolve(ctx context.Context, ref protocol.RoomRef) (models.Room, error) {
	if id, ok := ref.ID(); ok {
		room, err := s.GetByID(ctx, id)
		if err == nil || !errors.Is(err, ErrRoomNotFound) {
			return room, err
		}
	}
	if sl := ref.Slug(); sl != "" {
		return s.GetBySlug(ctx, sl)
	}
	return models.Room{}, ErrRoomNotFound
}

// Create makes a room owned by ownerID. The slug is derived from name plus a
// random suffix, regenerated on collision up to maxRetries times.
func (s *RoomService) Create(ctx context.Context, ownerID, name string) (models.Room, error) {
	const maxRetries = 10

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLen {
		return models.Room{}, ErrInvalidRoomName
	}
	base := slug.Make(name)
	if base == "" {
		base = "room"
	}

	for i := 0; i < maxRetries; i++ {
		suffix, err := s.idg.NewSuffix()
		if err != nil {
			return models.Room{}, err
		}
		candidate := base + "-" + suffix

		exists, err := s.repo.ExistsSlug(ctx, candidate)
		if err != nil {
			return models.Room{}, err
		}
		if exists {
			continue
		}

		room := models.Room{Slug: candidate, AdminID: ownerID}
		if err := s.repo.CreateRoom(ctx, &room); err != nil {
			// lost a race for the slug
			if errors.Is(err, repo.ErrAlreadyExists) {
				continue
			}
			return models.Room{}, err
		}
		s.cachePut(ctx, room)
		s.log.Info("room created", "roomId", room.ID, "slug", room.Slug, "adminId", ownerID)
		return room, nil
	}
	return models.Room{}, ErrSlugGenerationFailed
}

// ListOwned returns the rooms an account created, newest first.
func (s *RoomService) ListOwned(ctx context.Context, ownerID string, limit int) ([]models.Room, error) {
	return s.repo.ListRoomsByAdmin(ctx, ownerID, limit)
}

// cacheGet treats cache errors as misses.
func (s *RoomService) cacheGet(ctx context.Context, get func() (models.Room, bool, error)) (models.Room, bool) {
	if s.cache == nil {
		return models.Room{}, false
	}
	room, ok, err := get()
	if err != nil {
		s.log.Warn("room cache read failed", "err", err)
		return models.Room{}, false
	}
	return room, ok
}

func (s *RoomService) cachePut(ctx context.Context, room models.Room) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, room); err != nil {
		s.log.Warn("room cache write failed", "roomId", room.ID, "err", err)
	}
}
